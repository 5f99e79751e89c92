// Package watch re-runs analyses of repositories on a fixed interval.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/pipeline"
)

// AnalyzeFunc analyzes one repository.
type AnalyzeFunc func(ctx context.Context, repo string)

// Watcher schedules one job per repository. A job never overlaps itself;
// a tick that arrives while the previous analysis is running is skipped.
type Watcher struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// New creates a Watcher.
func New(logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Watcher{scheduler: s, logger: logger}, nil
}

// Add schedules fn for repo every interval, starting immediately once Run
// is called. ctx is passed to every invocation.
func (w *Watcher) Add(ctx context.Context, repo string, every time.Duration, fn AnalyzeFunc) error {
	if every <= 0 {
		return fmt.Errorf("watch %s: interval must be positive, got %s", repo, every)
	}
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			w.logger.Debug("scheduled analysis", zap.String("repo", repo))
			fn(ctx, repo)
		}),
		gocron.WithName(repo),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", repo, err)
	}
	return nil
}

// Repos lists the scheduled repositories.
func (w *Watcher) Repos() []string {
	jobs := w.scheduler.Jobs()
	repos := make([]string, 0, len(jobs))
	for _, j := range jobs {
		repos = append(repos, j.Name())
	}
	return repos
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to return.
func (w *Watcher) Run(ctx context.Context) error {
	w.scheduler.Start()
	<-ctx.Done()
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// SeenFunc reports whether a workflow run has already been analyzed.
type SeenFunc func(repo string, workflowRunID int64) (bool, error)

// DedupeSource wraps a LogSource and reports nothing to analyze when the
// latest failed workflow run was already analyzed.
type DedupeSource struct {
	next   pipeline.LogSource
	seen   SeenFunc
	logger *zap.Logger
}

var _ pipeline.LogSource = (*DedupeSource)(nil)

// NewDedupeSource creates a DedupeSource.
func NewDedupeSource(next pipeline.LogSource, seen SeenFunc, logger *zap.Logger) *DedupeSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupeSource{next: next, seen: seen, logger: logger}
}

func (s *DedupeSource) FetchFailedBuildLog(ctx context.Context, repo string) (*pipeline.BuildLog, error) {
	log, err := s.next.FetchFailedBuildLog(ctx, repo)
	if err != nil || log == nil || log.WorkflowRunID == 0 {
		return log, err
	}
	seen, err := s.seen(repo, log.WorkflowRunID)
	if err != nil {
		s.logger.Warn("check analyzed workflow runs", zap.String("repo", repo), zap.Error(err))
		return log, nil
	}
	if seen {
		s.logger.Info("workflow run already analyzed",
			zap.String("repo", repo),
			zap.Int64("workflow_run_id", log.WorkflowRunID))
		return nil, nil
	}
	return log, nil
}
