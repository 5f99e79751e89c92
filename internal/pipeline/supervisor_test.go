package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/logparse"
)

const tracebackLog = "##[group]Run python app.py\n" +
	"Traceback (most recent call last):\n" +
	"  File \"app.py\", line 3, in <module>\n" +
	"    import requests\n" +
	"ModuleNotFoundError: No module named 'requests'\n" +
	"##[error]Process completed with exit code 1.\n"

type fakeSource struct {
	mu    sync.Mutex
	logs  map[string]*BuildLog
	err   error
	calls int
}

func (f *fakeSource) FetchFailedBuildLog(_ context.Context, repo string) (*BuildLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.logs[repo], nil
}

// fakeTriager fails its first failN calls, or every call when failAll is set
// or the error type matches failType.
type fakeTriager struct {
	mu       sync.Mutex
	calls    int
	failN    int
	failAll  bool
	failType string
	panics   bool
}

func (f *fakeTriager) Triage(_ context.Context, primary logparse.ParsedError) (*diagnosis.TriageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("triage blew up")
	}
	if f.failAll || f.calls <= f.failN || (f.failType != "" && primary.ErrorType == f.failType) {
		return nil, errors.New("model unavailable")
	}
	return &diagnosis.TriageResult{
		Severity:  diagnosis.SeverityHigh,
		RootCause: "missing dependency " + primary.ErrorMessage,
		Category:  diagnosis.CategoryMissingPackage,
	}, nil
}

type fakeResearcher struct {
	mu     sync.Mutex
	calls  int
	panics bool
}

func (f *fakeResearcher) Research(_ context.Context, _ diagnosis.TriageResult, _ logparse.ParsedError) (*diagnosis.ResearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("nil map")
	}
	return &diagnosis.ResearchResult{
		Solutions: []diagnosis.Solution{{Title: "pip install requests"}, {Title: "pin requirements"}},
	}, nil
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, primary logparse.ParsedError, _ diagnosis.TriageResult, _ diagnosis.ResearchResult, repo string) (*diagnosis.Brief, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &diagnosis.Brief{
		Repository:     repo,
		ErrorType:      primary.ErrorType,
		FixSuggestions: []diagnosis.FixSuggestion{{Priority: 1, Title: "Add requests to requirements.txt"}},
	}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished []*State
	events   []StageEvent
}

func (o *recordingObserver) RunStarted(*State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) StageFinished(ev StageEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) RunFinished(st *State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, st)
}

type fixture struct {
	source *fakeSource
	tri    *fakeTriager
	res    *fakeResearcher
	syn    *fakeSynthesizer
	sup    *Supervisor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source: &fakeSource{logs: map[string]*BuildLog{
			"octo/app": {Text: tracebackLog, Path: "output/build_log.txt", WorkflowRunID: 42},
		}},
		tri: &fakeTriager{},
		res: &fakeResearcher{},
		syn: &fakeSynthesizer{},
	}
	f.sup = NewSupervisor(f.source, f.tri, f.res, f.syn)
	f.sup.SetModelDelay(0)
	f.sup.SetRunIDFunc(func() string { return "run-1" })
	f.sup.SetClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })
	return f
}

func containsMessage(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)
	st := f.sup.Run(context.Background(), "octo/app")

	if st.Phase != PhaseCompleted {
		t.Errorf("Phase = %q, want completed", st.Phase)
	}
	if st.FinishReason != FinishCompleted {
		t.Errorf("FinishReason = %q", st.FinishReason)
	}
	if st.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", st.ErrorMessage)
	}
	if st.Brief == nil || st.Brief.Repository != "octo/app" {
		t.Fatalf("Brief = %+v", st.Brief)
	}
	if st.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if st.Primary == nil || st.Primary.Category != logparse.CategoryDependency {
		t.Errorf("Primary = %+v", st.Primary)
	}
	if st.Primary.FailedStep != "python app.py" {
		t.Errorf("FailedStep = %q", st.Primary.FailedStep)
	}

	for _, want := range []string{
		"Workflow initialized for repository: octo/app",
		"Ingest: OK (",
		"Parse: Found 1 error(s)",
		"Triage: high",
		"Research: 2 solutions",
		"Synthesize: 1 fixes",
	} {
		if !containsMessage(st.Messages, want) {
			t.Errorf("audit trail missing %q: %q", want, st.Messages)
		}
	}
	if f.tri.calls != 1 || f.res.calls != 1 || f.syn.calls != 1 {
		t.Errorf("calls triage=%d research=%d synth=%d, want 1 each", f.tri.calls, f.res.calls, f.syn.calls)
	}
}

func TestRun_NothingToAnalyze(t *testing.T) {
	f := newFixture(t)
	st := f.sup.Run(context.Background(), "octo/green")

	if st.Phase != PhaseIngesting {
		t.Errorf("Phase = %q, want ingesting", st.Phase)
	}
	if st.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", st.ErrorMessage)
	}
	if st.FinishReason != FinishNothingToAnalyze {
		t.Errorf("FinishReason = %q", st.FinishReason)
	}
	if f.source.calls != 1 {
		t.Errorf("source calls = %d, want 1", f.source.calls)
	}
	if f.tri.calls != 0 {
		t.Errorf("triage called %d times", f.tri.calls)
	}
}

func TestRun_TriageAlwaysFails(t *testing.T) {
	f := newFixture(t)
	f.tri.failAll = true
	st := f.sup.Run(context.Background(), "octo/app")

	if f.tri.calls != 3 {
		t.Errorf("triage calls = %d, want 3", f.tri.calls)
	}
	if st.Phase != PhaseTriaging {
		t.Errorf("Phase = %q, want triaging", st.Phase)
	}
	if st.ErrorMessage != "model unavailable" {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if st.FinishReason != FinishBudgetExhausted {
		t.Errorf("FinishReason = %q", st.FinishReason)
	}
	if st.Primary == nil || st.Parse == nil || st.Log == nil {
		t.Error("earlier results were lost")
	}
	if st.Triage != nil || st.Research != nil || st.Brief != nil {
		t.Error("later results should be absent")
	}
	if !containsMessage(st.Messages, "Supervisor: triage failed 3 times, giving up") {
		t.Errorf("give-up not recorded: %q", st.Messages)
	}
	if f.res.calls != 0 {
		t.Errorf("research called %d times", f.res.calls)
	}
}

func TestRun_RetryThenSucceed(t *testing.T) {
	f := newFixture(t)
	f.tri.failN = 2
	obs := &recordingObserver{}
	f.sup.AddObserver(obs)

	st := f.sup.Run(context.Background(), "octo/app")
	if st.Phase != PhaseCompleted {
		t.Fatalf("Phase = %q, want completed", st.Phase)
	}
	if st.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared after success", st.ErrorMessage)
	}

	var triageAttempts []int
	var triageErrs int
	for _, ev := range obs.events {
		if ev.Stage == StageTriage {
			triageAttempts = append(triageAttempts, ev.Attempt)
			if ev.Err != nil {
				triageErrs++
			}
		}
	}
	if diff := cmp.Diff([]int{1, 2, 3}, triageAttempts); diff != "" {
		t.Errorf("triage attempts (-want +got):\n%s", diff)
	}
	if triageErrs != 2 {
		t.Errorf("triage failures = %d, want 2", triageErrs)
	}
	if obs.started != 1 || len(obs.finished) != 1 {
		t.Errorf("started=%d finished=%d", obs.started, len(obs.finished))
	}
}

func TestRun_ParseFindsNothing(t *testing.T) {
	f := newFixture(t)
	f.source.logs["octo/app"] = &BuildLog{Text: "Run actions/checkout@v4\nall good\n"}
	st := f.sup.Run(context.Background(), "octo/app")

	if st.Phase != PhaseParsing {
		t.Errorf("Phase = %q, want parsing", st.Phase)
	}
	if st.FinishReason != FinishBudgetExhausted {
		t.Errorf("FinishReason = %q", st.FinishReason)
	}
	if st.ErrorMessage != errNoErrors.Error() {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if st.Primary != nil {
		t.Error("Primary should be absent")
	}
}

func TestRun_IngestErrors(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("gh: not authenticated")
	st := f.sup.Run(context.Background(), "octo/app")

	if f.source.calls != 3 {
		t.Errorf("source calls = %d, want 3", f.source.calls)
	}
	if st.Phase != PhaseIngesting {
		t.Errorf("Phase = %q, want ingesting", st.Phase)
	}
	if st.ErrorMessage != "gh: not authenticated" {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if !containsMessage(st.Messages, "Ingest error: gh: not authenticated") {
		t.Errorf("Messages = %q", st.Messages)
	}
}

func TestRun_PanicIsStageFailure(t *testing.T) {
	f := newFixture(t)
	f.res.panics = true
	st := f.sup.Run(context.Background(), "octo/app")

	if f.res.calls != 3 {
		t.Errorf("research calls = %d, want 3", f.res.calls)
	}
	if st.Phase != PhaseResearching {
		t.Errorf("Phase = %q, want researching", st.Phase)
	}
	if !strings.Contains(st.ErrorMessage, "panic in research stage") {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if st.Triage == nil {
		t.Error("triage result was lost")
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := f.sup.Run(ctx, "octo/app")

	if st.Phase != PhaseFailed {
		t.Errorf("Phase = %q, want failed", st.Phase)
	}
	if st.FinishReason != FinishCancelled {
		t.Errorf("FinishReason = %q", st.FinishReason)
	}
	if st.ErrorMessage != context.Canceled.Error() {
		t.Errorf("ErrorMessage = %q", st.ErrorMessage)
	}
	if f.source.calls != 0 {
		t.Errorf("source called %d times after cancel", f.source.calls)
	}
}

func TestRun_ModelDelayBeforeModelStages(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var delays []time.Duration
	f.sup.SetModelDelay(3 * time.Second)
	f.sup.SetSleep(func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return nil
	})

	st := f.sup.Run(context.Background(), "octo/app")
	if st.Phase != PhaseCompleted {
		t.Fatalf("Phase = %q", st.Phase)
	}
	want := []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}
	if diff := cmp.Diff(want, delays); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}
}

func TestRun_ProgressOutput(t *testing.T) {
	f := newFixture(t)
	f.tri.failN = 1
	var buf bytes.Buffer
	f.sup.SetProgress(&buf)
	f.sup.Run(context.Background(), "octo/app")

	if !strings.Contains(buf.String(), "[triage] failed (attempt 1/3): model unavailable") {
		t.Errorf("progress output = %q", buf.String())
	}
}

func TestRun_ConcurrentRunsHaveOwnCounters(t *testing.T) {
	f := newFixture(t)
	f.source.logs["octo/broken"] = &BuildLog{Text: "KeyError: 'DATABASE_URL'\n"}
	f.tri.failType = "KeyError"
	var n int
	var mu sync.Mutex
	f.sup.SetRunIDFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "run-" + string(rune('a'+n))
	})

	var wg sync.WaitGroup
	results := make(map[string]*State)
	var rmu sync.Mutex
	for _, repo := range []string{"octo/app", "octo/broken"} {
		wg.Add(1)
		go func(repo string) {
			defer wg.Done()
			st := f.sup.Run(context.Background(), repo)
			rmu.Lock()
			results[repo] = st
			rmu.Unlock()
		}(repo)
	}
	wg.Wait()

	if got := results["octo/app"].Phase; got != PhaseCompleted {
		t.Errorf("octo/app Phase = %q, want completed", got)
	}
	broken := results["octo/broken"]
	if broken.Phase != PhaseTriaging || broken.FinishReason != FinishBudgetExhausted {
		t.Errorf("octo/broken = %q/%q", broken.Phase, broken.FinishReason)
	}
}

func TestStageIdempotent(t *testing.T) {
	f := newFixture(t)
	primary := logparse.ParsedError{ErrorType: "ModuleNotFoundError", ErrorMessage: "No module named 'x'", Category: logparse.CategoryDependency}

	runOnce := func() *State {
		st := NewState("run-1", "octo/app", time.Time{})
		st.Log = &BuildLog{Text: "x"}
		st.Primary = &primary
		st.Phase = PhaseTriaging
		r := &run{sup: f.sup, state: st, counters: NewFailureCounters(3), attempts: map[StageName]int{}, log: f.sup.logger}
		r.attempt(context.Background(), TriageStep{Primary: primary})
		return st
	}

	a, b := runOnce(), runOnce()
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(State{}, "Messages", "StartedAt", "CompletedAt")); diff != "" {
		t.Errorf("same input produced different states (-first +second):\n%s", diff)
	}
	if a.Primary.ErrorType != primary.ErrorType || a.Triage == nil {
		t.Errorf("Primary = %+v, Triage = %+v", a.Primary, a.Triage)
	}
}

func TestFailureCountersResetOnSuccess(t *testing.T) {
	f := newFixture(t)
	f.tri.failN = 2
	primary := logparse.ParsedError{ErrorType: "KeyError", ErrorMessage: "'a'", Category: logparse.CategoryRuntime}
	st := NewState("run-1", "octo/app", time.Time{})
	st.Log = &BuildLog{Text: "x"}
	st.Primary = &primary
	r := &run{sup: f.sup, state: st, counters: NewFailureCounters(3), attempts: map[StageName]int{}, log: f.sup.logger}

	var seen []int
	for i := 0; i < 3; i++ {
		r.attempt(context.Background(), TriageStep{Primary: primary})
		seen = append(seen, r.counters.Get(StageTriage))
	}
	if diff := cmp.Diff([]int{1, 2, 0}, seen); diff != "" {
		t.Errorf("counter sequence (-want +got):\n%s", diff)
	}
}
