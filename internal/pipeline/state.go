package pipeline

import (
	"time"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/logparse"
)

// Phase is the coarse progress marker of a run.
type Phase string

const (
	PhaseInitialized  Phase = "initialized"
	PhaseIngesting    Phase = "ingesting"
	PhaseParsing      Phase = "parsing"
	PhaseTriaging     Phase = "triaging"
	PhaseResearching  Phase = "researching"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseInitialized:  0,
	PhaseIngesting:    1,
	PhaseParsing:      2,
	PhaseTriaging:     3,
	PhaseResearching:  4,
	PhaseSynthesizing: 5,
	PhaseCompleted:    6,
}

// canMoveTo reports whether a run in phase p may move to next. Phases only
// move forward, except that failed is reachable from anywhere.
func (p Phase) canMoveTo(next Phase) bool {
	if p == PhaseFailed {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	cur, ok := phaseOrder[p]
	if !ok {
		return false
	}
	n, ok := phaseOrder[next]
	return ok && n > cur
}

// FinishReason says why the supervisor stopped a run.
type FinishReason string

const (
	FinishCompleted        FinishReason = "completed"
	FinishNothingToAnalyze FinishReason = "nothing_to_analyze"
	FinishBudgetExhausted  FinishReason = "budget_exhausted"
	FinishCancelled        FinishReason = "cancelled"
)

// BuildLog is a downloaded CI log and where it came from.
type BuildLog struct {
	Text          string `json:"-"`
	Path          string `json:"path,omitempty"`
	WorkflowRunID int64  `json:"workflow_run_id,omitempty"`
	URL           string `json:"url,omitempty"`
}

// State is the record threaded through every stage of one analysis run.
type State struct {
	RunID            string                    `json:"run_id"`
	Repo             string                    `json:"repo"`
	Log              *BuildLog                 `json:"log,omitempty"`
	Parse            *logparse.Result          `json:"parse_result,omitempty"`
	Primary          *logparse.ParsedError     `json:"primary_error,omitempty"`
	Triage           *diagnosis.TriageResult   `json:"triage_result,omitempty"`
	Research         *diagnosis.ResearchResult `json:"research_result,omitempty"`
	Brief            *diagnosis.Brief          `json:"debugging_brief,omitempty"`
	Phase            Phase                     `json:"current_phase"`
	Messages         []string                  `json:"messages"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	NothingToAnalyze bool                      `json:"nothing_to_analyze,omitempty"`
	FinishReason     FinishReason              `json:"finish_reason,omitempty"`
	StartedAt        time.Time                 `json:"started_at"`
	CompletedAt      *time.Time                `json:"completed_at,omitempty"`
}

// NewState returns the initial state for analysing repo.
func NewState(runID, repo string, now time.Time) *State {
	return &State{
		RunID:     runID,
		Repo:      repo,
		Phase:     PhaseInitialized,
		Messages:  []string{"Workflow initialized for repository: " + repo},
		StartedAt: now,
	}
}

// Update is a partial state change returned by a stage. Nil pointers and
// zero values leave the corresponding field alone.
type Update struct {
	Log      *BuildLog
	Parse    *logparse.Result
	Primary  *logparse.ParsedError
	Triage   *diagnosis.TriageResult
	Research *diagnosis.ResearchResult
	Brief    *diagnosis.Brief

	Phase            Phase
	SetError         string
	ClearError       bool
	NothingToAnalyze bool
	FinishReason     FinishReason
	CompletedAt      *time.Time
	Messages         []string
}

// Apply merges u into s. Populated results are never replaced or cleared,
// phases never move backwards, and messages are only appended.
func (s *State) Apply(u Update) {
	if u.Log != nil && s.Log == nil {
		s.Log = u.Log
	}
	if u.Parse != nil && s.Parse == nil {
		s.Parse = u.Parse
	}
	if u.Primary != nil && s.Primary == nil {
		s.Primary = u.Primary
	}
	if u.Triage != nil && s.Triage == nil {
		s.Triage = u.Triage
	}
	if u.Research != nil && s.Research == nil {
		s.Research = u.Research
	}
	if u.Brief != nil && s.Brief == nil {
		s.Brief = u.Brief
	}
	if u.Phase != "" && s.Phase.canMoveTo(u.Phase) {
		s.Phase = u.Phase
	}
	if u.ClearError {
		s.ErrorMessage = ""
	}
	if u.SetError != "" {
		s.ErrorMessage = u.SetError
	}
	if u.NothingToAnalyze {
		s.NothingToAnalyze = true
	}
	if u.FinishReason != "" {
		s.FinishReason = u.FinishReason
	}
	if u.CompletedAt != nil && s.CompletedAt == nil {
		s.CompletedAt = u.CompletedAt
	}
	s.Messages = append(s.Messages, u.Messages...)
}

// Finished reports whether the supervisor has stopped the run.
func (s *State) Finished() bool {
	return s.FinishReason != ""
}
