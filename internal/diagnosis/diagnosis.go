// Package diagnosis holds the results produced by the analysis stages that
// follow parsing: triage, research and the final debugging brief.
package diagnosis

import (
	"strings"
	"time"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity maps free text from a model to a Severity, defaulting to
// medium.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// RefinedCategory is the finer-grained classification assigned during triage.
type RefinedCategory string

const (
	CategoryMissingPackage         RefinedCategory = "missing_package"
	CategoryVersionConflict        RefinedCategory = "version_conflict"
	CategoryIncompatibleDependency RefinedCategory = "incompatible_dependency"
	CategorySyntaxError            RefinedCategory = "syntax_error"
	CategoryTypeError              RefinedCategory = "type_error"
	CategoryImportError            RefinedCategory = "import_error"
	CategoryAssertionFailure       RefinedCategory = "assertion_failure"
	CategoryTestTimeout            RefinedCategory = "test_timeout"
	CategoryFixtureError           RefinedCategory = "fixture_error"
	CategoryMissingEnvVar          RefinedCategory = "missing_env_var"
	CategoryInvalidConfig          RefinedCategory = "invalid_config"
	CategoryMissingFile            RefinedCategory = "missing_file"
	CategoryNetworkError           RefinedCategory = "network_error"
	CategoryPermissionDenied       RefinedCategory = "permission_denied"
	CategoryResourceLimit          RefinedCategory = "resource_limit"
	CategoryUnknown                RefinedCategory = "unknown"
)

var refinedCategories = []RefinedCategory{
	CategoryMissingPackage, CategoryVersionConflict, CategoryIncompatibleDependency,
	CategorySyntaxError, CategoryTypeError, CategoryImportError,
	CategoryAssertionFailure, CategoryTestTimeout, CategoryFixtureError,
	CategoryMissingEnvVar, CategoryInvalidConfig, CategoryMissingFile,
	CategoryNetworkError, CategoryPermissionDenied, CategoryResourceLimit,
	CategoryUnknown,
}

// RefinedCategories lists every refined category in prompt order.
func RefinedCategories() []RefinedCategory {
	return append([]RefinedCategory(nil), refinedCategories...)
}

// ParseRefinedCategory maps model output to a known category, or unknown.
func ParseRefinedCategory(s string) RefinedCategory {
	c := RefinedCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range refinedCategories {
		if c == known {
			return c
		}
	}
	return CategoryUnknown
}

// TriageResult is the first-pass assessment of the primary error.
type TriageResult struct {
	Severity             Severity        `json:"severity"`
	SeverityReasoning    string          `json:"severity_reasoning"`
	RootCause            string          `json:"root_cause"`
	RootCauseDetailed    string          `json:"root_cause_detailed"`
	Category             RefinedCategory `json:"error_category_refined"`
	AffectedFiles        []string        `json:"affected_files"`
	AffectedComponents   []string        `json:"affected_components"`
	ImmediateSuggestions []string        `json:"immediate_suggestions"`
	RequiresResearch     bool            `json:"requires_research"`
	ResearchQueries      []string        `json:"research_queries"`
	Confidence           float64         `json:"confidence_score"`
}

// Solution is one candidate fix surfaced by research.
type Solution struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Source      string   `json:"source"`
	Confidence  float64  `json:"confidence"`
}

// WebFinding is a single search hit kept for reference.
type WebFinding struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ResearchResult collects web findings and repository context.
type ResearchResult struct {
	ErrorSummary          string       `json:"error_summary"`
	QueriesUsed           []string     `json:"queries_used"`
	WebFindings           []WebFinding `json:"web_findings"`
	WebFindingsSummary    []string     `json:"web_findings_summary"`
	RelevantURLs          []string     `json:"relevant_urls"`
	FilesInspected        []string     `json:"files_inspected"`
	CodeObservations      []string     `json:"code_observations"`
	Solutions             []Solution   `json:"solutions"`
	PrimaryRecommendation string       `json:"primary_recommendation"`
}

// FixSuggestion is one ranked, actionable fix in the brief.
type FixSuggestion struct {
	Priority            int      `json:"priority"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	ImplementationSteps []string `json:"implementation_steps"`
	CodeExample         string   `json:"code_example,omitempty"`
	Confidence          float64  `json:"confidence"`
	Source              string   `json:"source"`
}

// Brief is the final debugging brief for a failed build.
type Brief struct {
	Title              string          `json:"title"`
	GeneratedAt        time.Time       `json:"generated_at"`
	Repository         string          `json:"repository"`
	ErrorType          string          `json:"error_type"`
	ErrorMessage       string          `json:"error_message"`
	Category           RefinedCategory `json:"error_category"`
	Severity           Severity        `json:"severity"`
	RootCauseSummary   string          `json:"root_cause_summary"`
	RootCauseDetailed  string          `json:"root_cause_detailed"`
	AffectedFiles      []string        `json:"affected_files"`
	AffectedComponents []string        `json:"affected_components"`
	FixSuggestions     []FixSuggestion `json:"fix_suggestions"`
	RelevantLinks      []string        `json:"relevant_links"`
	ResearchSummary    string          `json:"research_summary"`
	Confidence         float64         `json:"confidence_score"`
	FailedStep         string          `json:"failed_step,omitempty"`
	AnalysisDuration   time.Duration   `json:"analysis_duration_ns"`
}
