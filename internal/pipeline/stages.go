package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lucasnoah/rootcause/internal/logparse"
)

var (
	errNoErrors      = errors.New("no errors found in log")
	errEmptyResponse = errors.New("collaborator returned no result")
)

// activePhase is the phase a run sits in while stage is pending.
func activePhase(stage StageName) Phase {
	switch stage {
	case StageIngest:
		return PhaseIngesting
	case StageParse:
		return PhaseParsing
	case StageTriage:
		return PhaseTriaging
	case StageResearch:
		return PhaseResearching
	case StageSynthesize:
		return PhaseSynthesizing
	}
	return ""
}

// stageLabel is the audit trail prefix for stage.
func stageLabel(stage StageName) string {
	switch stage {
	case StageIngest:
		return "Ingest"
	case StageParse:
		return "Parse"
	case StageTriage:
		return "Triage"
	case StageResearch:
		return "Research"
	case StageSynthesize:
		return "Synthesize"
	}
	return string(stage)
}

// dispatch runs the stage selected by step. On error the returned Update is
// ignored; the caller records the failure.
func (r *run) dispatch(ctx context.Context, step StageStep) (Update, error) {
	switch s := step.(type) {
	case IngestStep:
		return r.ingest(ctx, s)
	case ParseStep:
		return r.parse(ctx, s)
	case TriageStep:
		return r.triage(ctx, s)
	case ResearchStep:
		return r.research(ctx, s)
	case SynthesizeStep:
		return r.synthesize(ctx, s)
	}
	return Update{}, fmt.Errorf("unknown step %T", step)
}

func (r *run) ingest(ctx context.Context, step IngestStep) (Update, error) {
	log, err := r.sup.source.FetchFailedBuildLog(ctx, step.Repo)
	if err != nil {
		return Update{}, err
	}
	if log == nil {
		return Update{
			Phase:            PhaseIngesting,
			NothingToAnalyze: true,
			ClearError:       true,
			Messages:         []string{"Ingest: No failed builds"},
		}, nil
	}
	return Update{
		Log:        log,
		Phase:      PhaseParsing,
		ClearError: true,
		Messages:   []string{fmt.Sprintf("Ingest: OK (%d chars)", utf8.RuneCountInString(log.Text))},
	}, nil
}

func (r *run) parse(_ context.Context, step ParseStep) (Update, error) {
	var res logparse.Result
	switch {
	case step.Log.Text != "":
		res = r.sup.parser.Parse(step.Log.Text)
	case step.Log.Path != "":
		res = r.sup.parser.ParseFile(step.Log.Path)
	default:
		res = r.sup.parser.Parse("")
	}
	if !res.Success {
		return Update{}, errors.New(res.Summary)
	}
	if res.Primary == nil {
		return Update{}, errNoErrors
	}
	return Update{
		Parse:      &res,
		Primary:    res.Primary,
		Phase:      PhaseTriaging,
		ClearError: true,
		Messages:   []string{fmt.Sprintf("Parse: Found %d error(s)", res.ErrorCount)},
	}, nil
}

func (r *run) triage(ctx context.Context, step TriageStep) (Update, error) {
	if err := r.sup.waitForModel(ctx); err != nil {
		return Update{}, err
	}
	res, err := r.sup.triager.Triage(ctx, step.Primary)
	if err != nil {
		return Update{}, err
	}
	if res == nil {
		return Update{}, errEmptyResponse
	}
	return Update{
		Triage:     res,
		Phase:      PhaseResearching,
		ClearError: true,
		Messages:   []string{fmt.Sprintf("Triage: %s", res.Severity)},
	}, nil
}

func (r *run) research(ctx context.Context, step ResearchStep) (Update, error) {
	if err := r.sup.waitForModel(ctx); err != nil {
		return Update{}, err
	}
	res, err := r.sup.researcher.Research(ctx, step.Triage, step.Primary)
	if err != nil {
		return Update{}, err
	}
	if res == nil {
		return Update{}, errEmptyResponse
	}
	return Update{
		Research:   res,
		Phase:      PhaseSynthesizing,
		ClearError: true,
		Messages:   []string{fmt.Sprintf("Research: %d solutions", len(res.Solutions))},
	}, nil
}

func (r *run) synthesize(ctx context.Context, step SynthesizeStep) (Update, error) {
	if err := r.sup.waitForModel(ctx); err != nil {
		return Update{}, err
	}
	brief, err := r.sup.synthesizer.Synthesize(ctx, step.Primary, step.Triage, step.Research, step.Repo)
	if err != nil {
		return Update{}, err
	}
	if brief == nil {
		return Update{}, errEmptyResponse
	}
	done := r.sup.now()
	return Update{
		Brief:       brief,
		Phase:       PhaseCompleted,
		ClearError:  true,
		CompletedAt: &done,
		Messages:    []string{fmt.Sprintf("Synthesize: %d fixes", len(brief.FixSuggestions))},
	}, nil
}

// failureUpdate records a failed attempt without touching produced results.
func failureUpdate(stage StageName, err error) Update {
	return Update{
		Phase:    activePhase(stage),
		SetError: err.Error(),
		Messages: []string{fmt.Sprintf("%s error: %v", stageLabel(stage), err)},
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
