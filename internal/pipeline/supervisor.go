package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/logparse"
)

// DefaultModelDelay is the pause before every model-backed stage.
const DefaultModelDelay = 3 * time.Second

// Supervisor drives runs through ingest, parse, triage, research and
// synthesize. A Supervisor holds no per-run state and may be shared by
// concurrent runs.
type Supervisor struct {
	source      LogSource
	triager     Triager
	researcher  Researcher
	synthesizer Synthesizer

	parser      *logparse.Parser
	maxFailures int
	modelDelay  time.Duration
	sleep       func(context.Context, time.Duration) error
	observer    Observer
	logger      *zap.Logger
	progress    io.Writer
	newRunID    func() string
	now         func() time.Time
}

// NewSupervisor creates a Supervisor with the default failure ceiling and
// model delay.
func NewSupervisor(src LogSource, tri Triager, res Researcher, syn Synthesizer) *Supervisor {
	return &Supervisor{
		source:      src,
		triager:     tri,
		researcher:  res,
		synthesizer: syn,
		parser:      &logparse.Parser{},
		maxFailures: DefaultMaxFailures,
		modelDelay:  DefaultModelDelay,
		sleep:       sleepContext,
		observer:    Observers(nil),
		logger:      zap.NewNop(),
		newRunID:    uuid.NewString,
		now:         time.Now,
	}
}

// SetProgress sets the writer for human-readable progress lines.
func (s *Supervisor) SetProgress(w io.Writer) { s.progress = w }

// SetLogger sets the structured logger.
func (s *Supervisor) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetParser replaces the log parser.
func (s *Supervisor) SetParser(p *logparse.Parser) {
	if p != nil {
		s.parser = p
	}
}

// SetMaxFailures sets how many consecutive failures a stage may have before
// the run gives up.
func (s *Supervisor) SetMaxFailures(n int) {
	if n > 0 {
		s.maxFailures = n
	}
}

// SetModelDelay sets the pause before each model-backed stage. Zero disables it.
func (s *Supervisor) SetModelDelay(d time.Duration) {
	if d >= 0 {
		s.modelDelay = d
	}
}

// SetSleep replaces the delay function, for tests.
func (s *Supervisor) SetSleep(fn func(context.Context, time.Duration) error) {
	if fn != nil {
		s.sleep = fn
	}
}

// SetClock replaces the time source, for tests.
func (s *Supervisor) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetRunIDFunc replaces the run ID generator.
func (s *Supervisor) SetRunIDFunc(fn func() string) {
	if fn != nil {
		s.newRunID = fn
	}
}

// AddObserver registers an observer for run and stage events.
func (s *Supervisor) AddObserver(o Observer) {
	if o == nil {
		return
	}
	if obs, ok := s.observer.(Observers); ok {
		s.observer = append(obs, o)
		return
	}
	s.observer = Observers{s.observer, o}
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.progress != nil {
		fmt.Fprintf(s.progress, format+"\n", args...)
	}
}

func (s *Supervisor) waitForModel(ctx context.Context) error {
	if s.modelDelay <= 0 {
		return ctx.Err()
	}
	s.logf("[rate limit] waiting %s before model call", s.modelDelay)
	return s.sleep(ctx, s.modelDelay)
}

// run is the per-invocation state: the pipeline record, its failure counters
// and attempt numbers.
type run struct {
	sup      *Supervisor
	state    *State
	counters *FailureCounters
	attempts map[StageName]int
	log      *zap.Logger
}

// Run analyses the latest failed build of repo and returns the final state.
// Stage failures, panics and cancellation are recorded in the state; Run
// itself never fails.
func (s *Supervisor) Run(ctx context.Context, repo string) *State {
	st := NewState(s.newRunID(), repo, s.now())
	r := &run{
		sup:      s,
		state:    st,
		counters: NewFailureCounters(s.maxFailures),
		attempts: make(map[StageName]int),
		log:      s.logger.With(zap.String("run_id", st.RunID), zap.String("repo", repo)),
	}
	s.logf("Analyzing %s (run %s, max %d failures per stage)", repo, st.RunID, r.counters.Ceiling())
	r.log.Info("run started")
	s.observer.RunStarted(st)

	r.loop(ctx)

	r.log.Info("run finished",
		zap.String("reason", string(st.FinishReason)),
		zap.String("phase", string(st.Phase)),
		zap.String("error", st.ErrorMessage),
	)
	s.observer.RunFinished(st)
	return st
}

func (r *run) loop(ctx context.Context) {
	for {
		step := r.state.Next()
		if fin, ok := step.(FinishStep); ok {
			r.finish(fin.Reason, Update{Messages: []string{"Supervisor: FINISH"}})
			return
		}
		if err := ctx.Err(); err != nil {
			r.finish(FinishCancelled, Update{
				Phase:    PhaseFailed,
				SetError: err.Error(),
				Messages: []string{fmt.Sprintf("Supervisor: cancelled (%v)", err)},
			})
			return
		}

		stageStep := step.(StageStep)
		stage := stageStep.Stage()
		if r.counters.Exhausted(stage) {
			msg := fmt.Sprintf("Supervisor: %s failed %d times, giving up", stage, r.counters.Get(stage))
			r.sup.logf("[supervisor] %s failed %d times. Giving up.", stage, r.counters.Get(stage))
			r.finish(FinishBudgetExhausted, Update{Messages: []string{msg}})
			return
		}

		r.state.Apply(Update{Messages: []string{"Supervisor: " + string(stage)}})
		r.attempt(ctx, stageStep)
	}
}

// attempt runs one stage and folds its outcome into the state and counters.
func (r *run) attempt(ctx context.Context, step StageStep) {
	stage := step.Stage()
	r.attempts[stage]++
	n := r.attempts[stage]
	r.sup.logf("[%s] attempt %d", stage, n)

	start := r.sup.now()
	u, err := r.safeDispatch(ctx, step)
	elapsed := r.sup.now().Sub(start)

	if err != nil {
		failures := r.counters.Fail(stage)
		u = failureUpdate(stage, err)
		r.sup.logf("[%s] failed (attempt %d/%d): %v", stage, failures, r.counters.Ceiling(), err)
		r.log.Warn("stage failed",
			zap.String("stage", string(stage)),
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
	} else {
		r.counters.Reset(stage)
		r.log.Debug("stage succeeded", zap.String("stage", string(stage)), zap.Duration("elapsed", elapsed))
	}
	r.state.Apply(u)

	var msg string
	if len(u.Messages) > 0 {
		msg = u.Messages[len(u.Messages)-1]
	}
	r.sup.observer.StageFinished(StageEvent{
		RunID:    r.state.RunID,
		Repo:     r.state.Repo,
		Stage:    stage,
		Attempt:  n,
		Duration: elapsed,
		Err:      err,
		Message:  msg,
	})
}

// safeDispatch turns a panicking collaborator into an ordinary stage failure.
func (r *run) safeDispatch(ctx context.Context, step StageStep) (u Update, err error) {
	defer func() {
		if p := recover(); p != nil {
			u = Update{}
			err = fmt.Errorf("panic in %s stage: %v", step.Stage(), p)
		}
	}()
	return r.dispatch(ctx, step)
}

func (r *run) finish(reason FinishReason, u Update) {
	u.FinishReason = reason
	r.state.Apply(u)
}
