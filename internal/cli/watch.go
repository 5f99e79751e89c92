package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rootcause/internal/db"
	"github.com/lucasnoah/rootcause/internal/github"
	"github.com/lucasnoah/rootcause/internal/metrics"
	"github.com/lucasnoah/rootcause/internal/pipeline"
	"github.com/lucasnoah/rootcause/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <owner/repo>...",
	Short: "Analyze new failed workflow runs on an interval",
	Long: `watch checks each repository on an interval and analyzes its latest
failed workflow run. Runs that were already analyzed successfully are
skipped, so a failure is diagnosed once. Stop with Ctrl-C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, repo := range args {
			if err := github.ValidateRepo(repo); err != nil {
				return err
			}
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		history, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		every, _ := cmd.Flags().GetDuration("every")
		var rec *metrics.Recorder
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		if metricsFile != "" {
			rec = metrics.NewRecorder(nil)
		}
		recorder := db.NewRecorder(history, logger)

		w, err := watch.New(logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		var mu sync.Mutex

		for _, repo := range args {
			repoCfg := *cfg
			repoCfg.Analyzer.OutputDir = filepath.Join(cfg.Analyzer.OutputDir, strings.ReplaceAll(repo, "/", "_"))

			sup, err := newSupervisor(cmd, &repoCfg, repo, func(src pipeline.LogSource) pipeline.LogSource {
				return watch.NewDedupeSource(src, history.HasAnalyzedWorkflowRun, logger)
			})
			if err != nil {
				return err
			}
			sup.AddObserver(recorder)
			if rec != nil {
				sup.AddObserver(rec)
			}

			err = w.Add(ctx, repo, every, func(ctx context.Context, repo string) {
				st := sup.Run(ctx, repo)
				mu.Lock()
				defer mu.Unlock()
				saveRun(&repoCfg, st, rec, metricsFile)
				fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05"), summaryLine(st))
			})
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(out, "Watching %s every %s\n", strings.Join(w.Repos(), ", "), every)
		return w.Run(ctx)
	},
}

// summaryLine describes a finished run in one line.
func summaryLine(st *pipeline.State) string {
	prefix := fmt.Sprintf("%s %s:", st.Repo, shortID(st.RunID))
	switch {
	case st.Phase == pipeline.PhaseFailed:
		return fmt.Sprintf("%s failed: %s", prefix, st.ErrorMessage)
	case st.NothingToAnalyze:
		return prefix + " nothing to analyze"
	case st.Brief != nil:
		return fmt.Sprintf("%s %s [%s]", prefix, st.Brief.Title, st.Brief.Severity)
	default:
		return fmt.Sprintf("%s %s", prefix, st.FinishReason)
	}
}

func init() {
	watchCmd.Flags().Duration("every", 15*time.Minute, "how often to check each repository")
	watchCmd.Flags().String("metrics-file", "", "rewrite Prometheus metrics to this file after each run")
}
