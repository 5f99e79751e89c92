package github

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/pipeline"
)

// LogFileName is the name the downloaded log is saved under.
const LogFileName = "build_log.txt"

// LogSource fetches the log of the latest failed workflow run.
type LogSource struct {
	client    *Client
	outputDir string
	logger    *zap.Logger
}

// NewLogSource returns a LogSource that saves logs under outputDir.
func NewLogSource(client *Client, outputDir string, logger *zap.Logger) *LogSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSource{client: client, outputDir: outputDir, logger: logger}
}

// FetchFailedBuildLog downloads the log of the most recent completed run when
// it failed. A passing, cancelled or absent run yields a nil log and no error.
func (s *LogSource) FetchFailedBuildLog(ctx context.Context, repo string) (*pipeline.BuildLog, error) {
	run, err := s.client.LatestCompletedRun(ctx, repo)
	if err != nil {
		return nil, err
	}
	if run == nil {
		s.logger.Info("no completed workflow runs", zap.String("repo", repo))
		return nil, nil
	}
	if !run.Failed() {
		s.logger.Info("latest run did not fail",
			zap.String("repo", repo),
			zap.Int64("run_id", run.DatabaseID),
			zap.String("conclusion", run.Conclusion),
		)
		return nil, nil
	}

	text, err := s.client.RunLog(ctx, repo, run.DatabaseID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.outputDir, LogFileName)
	if err := pipeline.WriteAtomic(path, []byte(text)); err != nil {
		return nil, fmt.Errorf("save build log: %w", err)
	}
	s.logger.Info("downloaded failed build log",
		zap.String("repo", repo),
		zap.Int64("run_id", run.DatabaseID),
		zap.String("workflow", run.WorkflowName),
		zap.String("path", path),
		zap.Int("bytes", len(text)),
	)
	return &pipeline.BuildLog{
		Text:          text,
		Path:          path,
		WorkflowRunID: run.DatabaseID,
		URL:           run.URL,
	}, nil
}
