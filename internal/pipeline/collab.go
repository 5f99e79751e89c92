package pipeline

import (
	"context"
	"time"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/logparse"
)

// LogSource fetches the log of the most recent failed build. A nil log with
// a nil error means there is nothing to analyse.
type LogSource interface {
	FetchFailedBuildLog(ctx context.Context, repo string) (*BuildLog, error)
}

// Triager assesses the primary error.
type Triager interface {
	Triage(ctx context.Context, primary logparse.ParsedError) (*diagnosis.TriageResult, error)
}

// Researcher looks for fixes.
type Researcher interface {
	Research(ctx context.Context, triage diagnosis.TriageResult, primary logparse.ParsedError) (*diagnosis.ResearchResult, error)
}

// Synthesizer writes the debugging brief.
type Synthesizer interface {
	Synthesize(ctx context.Context, primary logparse.ParsedError, triage diagnosis.TriageResult, research diagnosis.ResearchResult, repo string) (*diagnosis.Brief, error)
}

// StageEvent describes one finished stage attempt.
type StageEvent struct {
	RunID    string
	Repo     string
	Stage    StageName
	Attempt  int
	Duration time.Duration
	Err      error
	Message  string
}

// Observer is notified as a run progresses. Implementations must not block.
type Observer interface {
	RunStarted(st *State)
	StageFinished(ev StageEvent)
	RunFinished(st *State)
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) RunStarted(st *State) {
	for _, ob := range o {
		ob.RunStarted(st)
	}
}

func (o Observers) StageFinished(ev StageEvent) {
	for _, ob := range o {
		ob.StageFinished(ev)
	}
}

func (o Observers) RunFinished(st *State) {
	for _, ob := range o {
		ob.RunFinished(st)
	}
}
