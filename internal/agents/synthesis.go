package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/llm"
	"github.com/lucasnoah/rootcause/internal/logparse"
	"github.com/lucasnoah/rootcause/internal/prompt"
)

// DefaultFixCount is the number of fixes a brief asks for.
const DefaultFixCount = 3

// SynthesisAgent writes the final debugging brief.
type SynthesisAgent struct {
	model    llm.Model
	prompts  *prompt.Library
	fixCount int
	now      func() time.Time
	logger   *zap.Logger
}

// NewSynthesisAgent creates a SynthesisAgent.
func NewSynthesisAgent(model llm.Model, prompts *prompt.Library, logger *zap.Logger) *SynthesisAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisAgent{
		model:    model,
		prompts:  prompts,
		fixCount: DefaultFixCount,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces time.Now, for tests.
func (a *SynthesisAgent) SetClock(now func() time.Time) { a.now = now }

type synthesisPromptData struct {
	ErrorType         string
	ErrorMessage      string
	FailedStep        string
	Severity          string
	RootCause         string
	RootCauseDetailed string
	AffectedFiles     string
	Category          string
	WebFindings       string
	Solutions         string
	URLs              string
	FixCount          int
}

type fixReply struct {
	Priority            int      `json:"priority"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	ImplementationSteps []string `json:"implementation_steps"`
	CodeExample         *string  `json:"code_example"`
	Confidence          *float64 `json:"confidence"`
	Source              string   `json:"source"`
}

type synthesisReply struct {
	Title             string     `json:"title"`
	RootCauseSummary  string     `json:"root_cause_summary"`
	RootCauseDetailed string     `json:"root_cause_detailed"`
	FixSuggestions    []fixReply `json:"fix_suggestions"`
	ResearchSummary   string     `json:"research_summary"`
	Confidence        *float64   `json:"confidence_score"`
}

// Synthesize implements pipeline.Synthesizer.
func (a *SynthesisAgent) Synthesize(ctx context.Context, primary logparse.ParsedError, triage diagnosis.TriageResult, research diagnosis.ResearchResult, repo string) (*diagnosis.Brief, error) {
	start := a.now()
	data := a.promptData(primary, triage, research)

	system, err := a.prompts.Render(prompt.SynthesisSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := a.prompts.Render(prompt.Synthesis, data)
	if err != nil {
		return nil, err
	}
	raw, err := a.model.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("synthesis model call: %w", err)
	}

	brief := &diagnosis.Brief{
		Title:              fmt.Sprintf("%s: %s", primary.ErrorType, firstRunes(primary.ErrorMessage, 50)),
		Repository:         repo,
		ErrorType:          primary.ErrorType,
		ErrorMessage:       primary.ErrorMessage,
		FailedStep:         primary.FailedStep,
		Category:           triage.Category,
		Severity:           triage.Severity,
		RootCauseSummary:   triage.RootCause,
		RootCauseDetailed:  triage.RootCauseDetailed,
		AffectedFiles:      triage.AffectedFiles,
		AffectedComponents: triage.AffectedComponents,
		RelevantLinks:      firstN(research.RelevantURLs, 5),
		Confidence:         triage.Confidence,
	}

	var reply synthesisReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		a.logger.Warn("synthesis reply not parseable, using fallback", zap.Error(err))
	} else {
		brief.Title = orDefault(reply.Title, brief.Title)
		brief.RootCauseSummary = orDefault(reply.RootCauseSummary, brief.RootCauseSummary)
		brief.RootCauseDetailed = orDefault(reply.RootCauseDetailed, brief.RootCauseDetailed)
		brief.ResearchSummary = reply.ResearchSummary
		brief.Confidence = confidenceOr(reply.Confidence, brief.Confidence)
		brief.FixSuggestions = a.fixes(reply.FixSuggestions)
	}
	if len(brief.FixSuggestions) == 0 {
		brief.FixSuggestions = a.fallbackFixes(triage, research)
	}

	brief.GeneratedAt = a.now()
	brief.AnalysisDuration = brief.GeneratedAt.Sub(start)
	return brief, nil
}

func (a *SynthesisAgent) promptData(primary logparse.ParsedError, triage diagnosis.TriageResult, research diagnosis.ResearchResult) synthesisPromptData {
	var findings []string
	for _, f := range firstN(research.WebFindingsSummary, 5) {
		findings = append(findings, "- "+f)
	}
	var sols []string
	for _, s := range firstN(research.Solutions, 3) {
		sols = append(sols, fmt.Sprintf("- **%s** (confidence: %.0f%%)\n  %s", s.Title, s.Confidence*100, s.Description))
	}
	var urls []string
	for _, u := range firstN(research.RelevantURLs, 5) {
		urls = append(urls, "- "+u)
	}

	return synthesisPromptData{
		ErrorType:         primary.ErrorType,
		ErrorMessage:      firstRunes(primary.ErrorMessage, 300),
		FailedStep:        orDefault(primary.FailedStep, "Unknown"),
		Severity:          string(triage.Severity),
		RootCause:         triage.RootCause,
		RootCauseDetailed: firstRunes(triage.RootCauseDetailed, 500),
		AffectedFiles:     joinOr(triage.AffectedFiles, ", ", "Unknown"),
		Category:          string(triage.Category),
		WebFindings:       joinOr(findings, "\n", "No web findings available."),
		Solutions:         joinOr(sols, "\n", "No solutions from research."),
		URLs:              joinOr(urls, "\n", "No relevant URLs found."),
		FixCount:          a.fixCount,
	}
}

func (a *SynthesisAgent) fixes(replies []fixReply) []diagnosis.FixSuggestion {
	var out []diagnosis.FixSuggestion
	for _, f := range firstN(replies, a.fixCount) {
		fix := diagnosis.FixSuggestion{
			Priority:            f.Priority,
			Title:               orDefault(f.Title, "Fix suggestion"),
			Description:         f.Description,
			ImplementationSteps: f.ImplementationSteps,
			Confidence:          confidenceOr(f.Confidence, 0.5),
			Source:              orDefault(f.Source, "ai_synthesis"),
		}
		if fix.Priority <= 0 {
			fix.Priority = len(out) + 1
		}
		if f.CodeExample != nil && !strings.EqualFold(strings.TrimSpace(*f.CodeExample), "null") {
			fix.CodeExample = *f.CodeExample
		}
		out = append(out, fix)
	}
	return out
}

// fallbackFixes builds suggestions from triage and research when the model
// reply has none.
func (a *SynthesisAgent) fallbackFixes(triage diagnosis.TriageResult, research diagnosis.ResearchResult) []diagnosis.FixSuggestion {
	var out []diagnosis.FixSuggestion
	for i, s := range firstN(triage.ImmediateSuggestions, 2) {
		out = append(out, diagnosis.FixSuggestion{
			Priority:            i + 1,
			Title:               fmt.Sprintf("Suggestion %d", i+1),
			Description:         s,
			ImplementationSteps: []string{s},
			Confidence:          0.7,
			Source:              "triage_agent",
		})
	}
	for _, sol := range firstN(research.Solutions, 1) {
		out = append(out, diagnosis.FixSuggestion{
			Priority:            len(out) + 1,
			Title:               sol.Title,
			Description:         sol.Description,
			ImplementationSteps: sol.Steps,
			Confidence:          sol.Confidence,
			Source:              "research_agent",
		})
	}
	return firstN(out, a.fixCount)
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
