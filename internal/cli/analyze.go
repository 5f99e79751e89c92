package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/agents"
	"github.com/lucasnoah/rootcause/internal/config"
	"github.com/lucasnoah/rootcause/internal/db"
	"github.com/lucasnoah/rootcause/internal/diagnosis"
	"github.com/lucasnoah/rootcause/internal/github"
	"github.com/lucasnoah/rootcause/internal/logparse"
	"github.com/lucasnoah/rootcause/internal/metrics"
	"github.com/lucasnoah/rootcause/internal/pipeline"
	"github.com/lucasnoah/rootcause/internal/prompt"
	"github.com/lucasnoah/rootcause/internal/repoctx"
	"github.com/lucasnoah/rootcause/internal/search"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner/repo>",
	Short: "Analyze the most recent failed workflow run of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := args[0]
		if err := github.ValidateRepo(repo); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		progress := cmd.OutOrStdout()
		if jsonOut {
			progress = cmd.ErrOrStderr()
		}

		sup, err := newSupervisor(cmd, cfg, repo, nil)
		if err != nil {
			return err
		}
		sup.SetProgress(progress)

		if history, cleanup, err := openDB(cfg); err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			defer cleanup()
			sup.AddObserver(db.NewRecorder(history, logger))
		}

		var rec *metrics.Recorder
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		if metricsFile != "" {
			rec = metrics.NewRecorder(nil)
			sup.AddObserver(rec)
		}

		st := sup.Run(ctx, repo)
		saveRun(cfg, st, rec, metricsFile)

		if jsonOut {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			printOutcome(cmd.OutOrStdout(), st)
		}

		if st.Phase == pipeline.PhaseFailed {
			return fmt.Errorf("analysis of %s failed: %s", repo, st.ErrorMessage)
		}
		return nil
	},
}

// saveRun persists the final state and, when requested, the metrics file.
func saveRun(cfg *config.Config, st *pipeline.State, rec *metrics.Recorder, metricsFile string) {
	if err := pipeline.NewStore(cfg.Analyzer.StateDir).Save(st); err != nil {
		logger.Warn("save run state", zap.String("run_id", st.RunID), zap.Error(err))
	}
	if err := rec.WriteTextfile(metricsFile); err != nil {
		logger.Warn("write metrics", zap.Error(err))
	}
}

// newSupervisor wires the GitHub source, the model-backed agents and the
// parser settings from cfg. wrap, if set, decorates the log source.
func newSupervisor(cmd *cobra.Command, cfg *config.Config, repo string, wrap func(pipeline.LogSource) pipeline.LogSource) (*pipeline.Supervisor, error) {
	model, err := newModel(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	prompts := prompt.NewLibrary(cfg.Analyzer.PromptsDir)
	gh := github.NewClient(&github.ExecRunner{})

	researchOpts := []agents.ResearchOption{
		agents.WithCodeContext(repoctx.NewBuilder(gh, logger), repo),
		agents.WithSearchLimits(cfg.Search.MaxQueries, cfg.Search.MaxResults),
		agents.WithResearchLogger(logger),
	}
	if key := config.TavilyAPIKey(); key != "" {
		tavily, err := search.NewTavily(key,
			search.WithDepth(cfg.Search.SearchDepth),
			search.WithTimeout(cfg.Search.TimeoutDuration()),
			search.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		researchOpts = append(researchOpts, agents.WithSearcher(tavily))
	} else {
		logger.Warn("web search disabled", zap.String("missing", config.EnvTavilyKey))
	}

	var src pipeline.LogSource = github.NewLogSource(gh, cfg.Analyzer.OutputDir, logger)
	if wrap != nil {
		src = wrap(src)
	}
	sup := pipeline.NewSupervisor(
		src,
		agents.NewTriageAgent(model, prompts, logger),
		agents.NewResearchAgent(model, prompts, researchOpts...),
		agents.NewSynthesisAgent(model, prompts, logger),
	)
	sup.SetParser(newParser(cfg))
	sup.SetMaxFailures(cfg.Analyzer.MaxFailures)
	sup.SetModelDelay(cfg.Analyzer.ModelDelayDuration())
	sup.SetLogger(logger)
	return sup, nil
}

func newParser(cfg *config.Config) *logparse.Parser {
	return &logparse.Parser{
		ContextLines:    cfg.Analyzer.ContextLines,
		MaxLogBytes:     cfg.Analyzer.MaxLogBytes,
		MaxContextChars: cfg.Analyzer.MaxContextChars,
	}
}

// printOutcome writes the audit trail followed by the brief or the reason
// there is none.
func printOutcome(w io.Writer, st *pipeline.State) {
	fmt.Fprintf(w, "\nRun %s (%s)\n", st.RunID, st.Repo)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, m := range st.Messages {
		fmt.Fprintf(w, "  %s\n", m)
	}
	fmt.Fprintln(w)

	switch {
	case st.Phase == pipeline.PhaseFailed:
		fmt.Fprintf(w, "Analysis failed: %s\n", st.ErrorMessage)
	case st.NothingToAnalyze:
		fmt.Fprintln(w, "Nothing to analyze: the latest completed run did not fail.")
	case st.Brief != nil:
		printBrief(w, st.Brief)
	default:
		fmt.Fprintf(w, "Finished: %s\n", st.FinishReason)
	}
}

func printBrief(w io.Writer, b *diagnosis.Brief) {
	fmt.Fprintf(w, "%s\n", b.Title)
	fmt.Fprintf(w, "Severity: %s   Category: %s   Confidence: %.0f%%\n", b.Severity, b.Category, b.Confidence*100)
	if b.FailedStep != "" {
		fmt.Fprintf(w, "Failed step: %s\n", b.FailedStep)
	}
	fmt.Fprintf(w, "\nRoot cause: %s\n", b.RootCauseSummary)
	if b.RootCauseDetailed != "" {
		fmt.Fprintf(w, "\n%s\n", b.RootCauseDetailed)
	}
	if len(b.AffectedFiles) > 0 {
		fmt.Fprintf(w, "\nAffected files: %s\n", strings.Join(b.AffectedFiles, ", "))
	}

	if len(b.FixSuggestions) > 0 {
		fmt.Fprintln(w, "\nSuggested fixes:")
		for _, f := range b.FixSuggestions {
			fmt.Fprintf(w, "  %d. %s (%.0f%%)\n", f.Priority, f.Title, f.Confidence*100)
			if f.Description != "" {
				fmt.Fprintf(w, "     %s\n", f.Description)
			}
			for _, step := range f.ImplementationSteps {
				fmt.Fprintf(w, "     - %s\n", step)
			}
			if f.CodeExample != "" {
				for _, line := range strings.Split(f.CodeExample, "\n") {
					fmt.Fprintf(w, "       %s\n", line)
				}
			}
		}
	}
	if len(b.RelevantLinks) > 0 {
		fmt.Fprintln(w, "\nLinks:")
		for _, l := range b.RelevantLinks {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
}

func init() {
	analyzeCmd.Flags().Duration("timeout", 0, "abort the analysis after this long (0 = no limit)")
	analyzeCmd.Flags().String("metrics-file", "", "write Prometheus metrics for the run to this file")
	analyzeCmd.Flags().Bool("json", false, "print the final run state as JSON")
}
