package pipeline

import (
	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/logparse"
)

// StageName identifies one of the five pipeline stages.
type StageName string

const (
	StageIngest     StageName = "ingest"
	StageParse      StageName = "parse"
	StageTriage     StageName = "triage"
	StageResearch   StageName = "research"
	StageSynthesize StageName = "synthesize"
)

// Stages lists the stages in execution order.
func Stages() []StageName {
	return []StageName{StageIngest, StageParse, StageTriage, StageResearch, StageSynthesize}
}

// Step is what a run does next. Each stage variant carries exactly the inputs
// its stage needs, so handlers never check for missing data.
type Step interface {
	isStep()
}

// StageStep is a Step that dispatches to a stage.
type StageStep interface {
	Step
	Stage() StageName
}

type IngestStep struct{ Repo string }

type ParseStep struct{ Log BuildLog }

type TriageStep struct{ Primary logparse.ParsedError }

type ResearchStep struct {
	Primary logparse.ParsedError
	Triage  diagnosis.TriageResult
}

type SynthesizeStep struct {
	Repo     string
	Primary  logparse.ParsedError
	Triage   diagnosis.TriageResult
	Research diagnosis.ResearchResult
}

// FinishStep ends the run.
type FinishStep struct{ Reason FinishReason }

func (IngestStep) isStep()     {}
func (ParseStep) isStep()      {}
func (TriageStep) isStep()     {}
func (ResearchStep) isStep()   {}
func (SynthesizeStep) isStep() {}
func (FinishStep) isStep()     {}

func (IngestStep) Stage() StageName     { return StageIngest }
func (ParseStep) Stage() StageName      { return StageParse }
func (TriageStep) Stage() StageName     { return StageTriage }
func (ResearchStep) Stage() StageName   { return StageResearch }
func (SynthesizeStep) Stage() StageName { return StageSynthesize }

// Next derives the next step from what the run has produced so far.
func (s *State) Next() Step {
	switch {
	case s.NothingToAnalyze:
		return FinishStep{Reason: FinishNothingToAnalyze}
	case s.Log == nil:
		return IngestStep{Repo: s.Repo}
	case s.Primary == nil:
		return ParseStep{Log: *s.Log}
	case s.Triage == nil:
		return TriageStep{Primary: *s.Primary}
	case s.Research == nil:
		return ResearchStep{Primary: *s.Primary, Triage: *s.Triage}
	case s.Brief == nil:
		return SynthesizeStep{Repo: s.Repo, Primary: *s.Primary, Triage: *s.Triage, Research: *s.Research}
	default:
		return FinishStep{Reason: FinishCompleted}
	}
}
