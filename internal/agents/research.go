package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/llm"
	"github.com/lucasnoah/rootcause/internal/logparse"
	"github.com/lucasnoah/rootcause/internal/prompt"
	"github.com/lucasnoah/rootcause/internal/repoctx"
	"github.com/lucasnoah/rootcause/internal/search"
)

const (
	maxRelevantURLs     = 6
	urlsPerResponse     = 2
	hitContentRunes     = 400
	webFindingsRunes    = 3000
	requirementsRunes   = 800
	workflowRunes       = 600
	workflowsInPrompt   = 2
	researchMsgRunes    = 200
	fallbackSuggestions = 3

	manualReview = "Manual review required - AI response parsing failed"
)

// ContextBuilder gathers repository context. repoctx.Builder satisfies it.
type ContextBuilder interface {
	Build(ctx context.Context, repo string) (*repoctx.RepoContext, error)
}

// ResearchAgent searches the web and the repository for fixes and asks the
// model to turn the findings into candidate solutions.
type ResearchAgent struct {
	model      llm.Model
	prompts    *prompt.Library
	searcher   search.Searcher
	code       ContextBuilder
	repo       string
	maxQueries int
	maxResults int
	logger     *zap.Logger
}

// ResearchOption configures a ResearchAgent.
type ResearchOption func(*ResearchAgent)

// WithSearcher enables web search.
func WithSearcher(s search.Searcher) ResearchOption {
	return func(a *ResearchAgent) { a.searcher = s }
}

// WithCodeContext enables repository context for repo.
func WithCodeContext(b ContextBuilder, repo string) ResearchOption {
	return func(a *ResearchAgent) { a.code, a.repo = b, repo }
}

// WithSearchLimits sets the query and per-query result caps.
func WithSearchLimits(maxQueries, maxResults int) ResearchOption {
	return func(a *ResearchAgent) { a.maxQueries, a.maxResults = maxQueries, maxResults }
}

// WithResearchLogger sets the logger.
func WithResearchLogger(l *zap.Logger) ResearchOption {
	return func(a *ResearchAgent) { a.logger = l }
}

// NewResearchAgent creates a ResearchAgent. Without a searcher or context
// builder the corresponding research is skipped.
func NewResearchAgent(model llm.Model, prompts *prompt.Library, opts ...ResearchOption) *ResearchAgent {
	a := &ResearchAgent{
		model:      model,
		prompts:    prompts,
		maxQueries: search.DefaultMaxQueries,
		maxResults: search.DefaultMaxResults,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type researchPromptData struct {
	ErrorType     string
	ErrorMessage  string
	RootCause     string
	WebFindings   string
	Repo          string
	RelevantFiles string
	Requirements  string
	Workflows     string
}

type solutionReply struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Source      string   `json:"source"`
	Confidence  *float64 `json:"confidence"`
}

type researchReply struct {
	WebFindingsSummary    []string        `json:"web_findings_summary"`
	CodeObservations      []string        `json:"code_observations"`
	Solutions             []solutionReply `json:"solutions"`
	PrimaryRecommendation string          `json:"primary_recommendation"`
}

// Research implements pipeline.Researcher.
func (a *ResearchAgent) Research(ctx context.Context, triage diagnosis.TriageResult, primary logparse.ParsedError) (*diagnosis.ResearchResult, error) {
	queries := search.BuildQueries(search.QueryInput{
		ErrorType:         primary.ErrorType,
		ErrorMessage:      primary.ErrorMessage,
		Category:          string(triage.Category),
		SuggestedByTriage: triage.ResearchQueries,
	}, a.maxQueries)

	var responses []search.Response
	if a.searcher != nil {
		responses = search.SearchMultiple(ctx, a.searcher, queries, a.maxResults, a.logger)
	}

	var code *repoctx.RepoContext
	if a.code != nil && a.repo != "" {
		rc, err := a.code.Build(ctx, a.repo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("repository context unavailable", zap.String("repo", a.repo), zap.Error(err))
		}
		code = rc
	}

	user, err := a.prompts.Render(prompt.Research, a.promptData(triage, primary, responses, code))
	if err != nil {
		return nil, err
	}
	raw, err := a.model.Complete(ctx, "", user)
	if err != nil {
		return nil, fmt.Errorf("research model call: %w", err)
	}

	var reply researchReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		a.logger.Warn("research reply not parseable, using fallback", zap.Error(err))
		reply = researchReply{
			WebFindingsSummary:    []string{"Could not parse AI response - see raw data"},
			PrimaryRecommendation: manualReview,
		}
	}

	res := &diagnosis.ResearchResult{
		ErrorSummary:          fmt.Sprintf("%s: %s", primary.ErrorType, firstRunes(primary.ErrorMessage, 100)),
		QueriesUsed:           queries,
		WebFindings:           webFindings(responses),
		WebFindingsSummary:    reply.WebFindingsSummary,
		RelevantURLs:          relevantURLs(responses),
		FilesInspected:        code.Paths(),
		CodeObservations:      reply.CodeObservations,
		Solutions:             solutions(reply.Solutions),
		PrimaryRecommendation: reply.PrimaryRecommendation,
	}
	if len(res.Solutions) == 0 {
		res.Solutions = suggestionsAsSolutions(triage.ImmediateSuggestions)
	}
	return res, nil
}

func (a *ResearchAgent) promptData(triage diagnosis.TriageResult, primary logparse.ParsedError, responses []search.Response, code *repoctx.RepoContext) researchPromptData {
	d := researchPromptData{
		ErrorType:     primary.ErrorType,
		ErrorMessage:  firstRunes(primary.ErrorMessage, researchMsgRunes),
		RootCause:     triage.RootCause,
		WebFindings:   firstRunes(formatWebFindings(responses), webFindingsRunes),
		Repo:          orDefault(a.repo, "Not specified"),
		RelevantFiles: joinOr(code.Paths(), ", ", "None found"),
		Requirements:  "No requirements.txt found",
		Workflows:     "No workflow files found",
	}
	if code == nil {
		return d
	}
	if code.Requirements != "" {
		d.Requirements = firstRunes(code.Requirements, requirementsRunes)
	}
	var wf []string
	for i, f := range code.Workflows {
		if i == workflowsInPrompt {
			break
		}
		content := strings.ReplaceAll(firstRunes(f.Content, workflowRunes), "`", "'")
		wf = append(wf, fmt.Sprintf("File: %s\n%s", f.Path, content))
	}
	if len(wf) > 0 {
		d.Workflows = strings.Join(wf, "\n\n")
	}
	return d
}

func formatWebFindings(responses []search.Response) string {
	var b strings.Builder
	for _, r := range responses {
		fmt.Fprintf(&b, "\nSearch Query: %s\n", r.Query)
		if r.Answer != "" {
			fmt.Fprintf(&b, "Summary: %s\n", r.Answer)
		}
		for i, hit := range r.Results {
			content := strings.TrimSpace(strings.ReplaceAll(firstRunes(hit.Content, hitContentRunes), "\n", " "))
			fmt.Fprintf(&b, "\nResult %d: %s\nURL: %s\nContent: %s\n", i+1, hit.Title, hit.URL, content)
		}
	}
	if b.Len() == 0 {
		return "No web findings available."
	}
	return b.String()
}

func webFindings(responses []search.Response) []diagnosis.WebFinding {
	var out []diagnosis.WebFinding
	for _, r := range responses {
		for _, hit := range r.Results {
			out = append(out, diagnosis.WebFinding{Title: hit.Title, URL: hit.URL, Content: hit.Content, Score: hit.Score})
		}
	}
	return out
}

func relevantURLs(responses []search.Response) []string {
	var out []string
	for _, r := range responses {
		for i, hit := range r.Results {
			if i == urlsPerResponse {
				break
			}
			if hit.URL != "" {
				out = append(out, hit.URL)
			}
		}
	}
	if len(out) > maxRelevantURLs {
		out = out[:maxRelevantURLs]
	}
	return out
}

func solutions(replies []solutionReply) []diagnosis.Solution {
	var out []diagnosis.Solution
	for _, s := range replies {
		out = append(out, diagnosis.Solution{
			Title:       orDefault(s.Title, "Solution"),
			Description: s.Description,
			Steps:       s.Steps,
			Source:      orDefault(s.Source, "research"),
			Confidence:  confidenceOr(s.Confidence, 0.5),
		})
	}
	return out
}

func suggestionsAsSolutions(suggestions []string) []diagnosis.Solution {
	var out []diagnosis.Solution
	for i, s := range suggestions {
		if i == fallbackSuggestions {
			break
		}
		out = append(out, diagnosis.Solution{
			Title:       fmt.Sprintf("Suggestion %d", i+1),
			Description: s,
			Steps:       []string{s},
			Source:      "triage_agent",
			Confidence:  0.7,
		})
	}
	return out
}
