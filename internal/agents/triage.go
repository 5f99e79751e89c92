package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/llm"
	"github.com/lucasnoah/rootcause/internal/logparse"
	"github.com/lucasnoah/rootcause/internal/prompt"
)

const triageRawBlockRunes = 2000

// TriageAgent assesses severity and root cause of the primary error.
type TriageAgent struct {
	model   llm.Model
	prompts *prompt.Library
	logger  *zap.Logger
}

// NewTriageAgent creates a TriageAgent.
func NewTriageAgent(model llm.Model, prompts *prompt.Library, logger *zap.Logger) *TriageAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageAgent{model: model, prompts: prompts, logger: logger}
}

type triagePromptData struct {
	ErrorType     string
	ErrorMessage  string
	Category      string
	FailedStep    string
	ExitCode      string
	StackTrace    string
	RawErrorBlock string
	Categories    []diagnosis.RefinedCategory
}

type triageReply struct {
	Severity             string   `json:"severity"`
	SeverityReasoning    string   `json:"severity_reasoning"`
	RootCause            string   `json:"root_cause"`
	RootCauseDetailed    string   `json:"root_cause_detailed"`
	Category             string   `json:"error_category_refined"`
	AffectedFiles        []string `json:"affected_files"`
	AffectedComponents   []string `json:"affected_components"`
	ImmediateSuggestions []string `json:"immediate_suggestions"`
	RequiresResearch     bool     `json:"requires_research"`
	ResearchQueries      []string `json:"research_queries"`
	Confidence           *float64 `json:"confidence_score"`
}

// Triage implements pipeline.Triager.
func (a *TriageAgent) Triage(ctx context.Context, primary logparse.ParsedError) (*diagnosis.TriageResult, error) {
	data := triagePromptData{
		ErrorType:     primary.ErrorType,
		ErrorMessage:  primary.ErrorMessage,
		Category:      orDefault(string(primary.Category), string(logparse.CategoryUnknown)),
		FailedStep:    orDefault(primary.FailedStep, "Unknown"),
		ExitCode:      "Unknown",
		StackTrace:    joinOr(primary.StackTrace, "\n", "No stack trace available"),
		RawErrorBlock: orDefault(firstRunes(primary.RawErrorBlock, triageRawBlockRunes), "No additional context"),
		Categories:    diagnosis.RefinedCategories(),
	}
	if primary.ExitCode != nil {
		data.ExitCode = strconv.Itoa(*primary.ExitCode)
	}

	system, err := a.prompts.Render(prompt.TriageSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := a.prompts.Render(prompt.Triage, data)
	if err != nil {
		return nil, err
	}

	reply, err := a.model.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("triage model call: %w", err)
	}

	var r triageReply
	if err := llm.DecodeJSON(reply, &r); err != nil {
		a.logger.Warn("triage reply not parseable, using fallback", zap.Error(err))
		return triageFallback(reply), nil
	}
	return r.result(), nil
}

func (r triageReply) result() *diagnosis.TriageResult {
	return &diagnosis.TriageResult{
		Severity:             diagnosis.ParseSeverity(r.Severity),
		SeverityReasoning:    r.SeverityReasoning,
		RootCause:            strings.TrimSpace(r.RootCause),
		RootCauseDetailed:    r.RootCauseDetailed,
		Category:             diagnosis.ParseRefinedCategory(r.Category),
		AffectedFiles:        r.AffectedFiles,
		AffectedComponents:   r.AffectedComponents,
		ImmediateSuggestions: r.ImmediateSuggestions,
		RequiresResearch:     r.RequiresResearch,
		ResearchQueries:      r.ResearchQueries,
		Confidence:           confidenceOr(r.Confidence, 0),
	}
}

func triageFallback(reply string) *diagnosis.TriageResult {
	return &diagnosis.TriageResult{
		Severity:             diagnosis.SeverityMedium,
		SeverityReasoning:    "Could not parse AI response",
		RootCause:            "Analysis failed - please review logs manually",
		RootCauseDetailed:    "The AI response could not be parsed: " + firstRunes(reply, 500),
		Category:             diagnosis.CategoryUnknown,
		ImmediateSuggestions: []string{"Review the raw logs manually"},
		RequiresResearch:     true,
		ResearchQueries:      []string{"CI/CD build failure debugging"},
		Confidence:           0,
	}
}
