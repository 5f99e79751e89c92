package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rootcause/internal/db"
	"github.com/lucasnoah/rootcause/internal/pipeline"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the history of analysis runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		repo, _ := cmd.Flags().GetString("repo")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := d.ListRuns(repo, limit)
		if err != nil {
			return err
		}

		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tREPO\tOUTCOME\tSEVERITY\tERROR\tSTARTED")
		for _, r := range runs {
			outcome := r.FinishReason
			if outcome == "" {
				outcome = db.OutcomeInProgress
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(r.RunID), r.Repo, outcome, orDash(r.Severity), orDash(r.ErrorType),
				r.StartedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its stage attempts and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if state, _ := cmd.Flags().GetBool("state"); state {
			st, err := pipeline.NewStore(cfg.Analyzer.StateDir).Get(args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		r, err := d.GetRun(args[0])
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		attempts, err := d.GetStageAttempts(r.RunID)
		if err != nil {
			return err
		}
		msgs, err := d.GetMessages(r.RunID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:       %s\n", r.RunID)
		fmt.Fprintf(out, "Repo:      %s\n", r.Repo)
		fmt.Fprintf(out, "Phase:     %s\n", r.Phase)
		fmt.Fprintf(out, "Outcome:   %s\n", orDash(r.FinishReason))
		if r.WorkflowRunID != 0 {
			fmt.Fprintf(out, "Workflow:  %d\n", r.WorkflowRunID)
		}
		if r.ErrorType != "" {
			fmt.Fprintf(out, "Error:     %s (%s, %s)\n", r.ErrorType, orDash(r.Category), orDash(r.Severity))
		}
		if r.ErrorMessage != "" {
			fmt.Fprintf(out, "Failure:   %s\n", r.ErrorMessage)
		}
		fmt.Fprintf(out, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
		if !r.CompletedAt.IsZero() {
			fmt.Fprintf(out, "Duration:  %s\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}

		if len(attempts) > 0 {
			fmt.Fprintln(out, "\nStage attempts:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  STAGE\tATT\tRESULT\tDURATION\tDETAIL")
			for _, a := range attempts {
				result, detail := "ok", a.Message
				if !a.Succeeded {
					result, detail = "failed", a.Error
				}
				fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%s\n", a.Stage, a.Attempt, result, a.Duration, detail)
			}
			w.Flush()
		}

		if len(msgs) > 0 {
			fmt.Fprintln(out, "\nMessages:")
			for _, m := range msgs {
				fmt.Fprintf(out, "  %s\n", m)
			}
		}
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize run outcomes and stage failure rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := d.Stats()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Runs: %d\n", st.TotalRuns)
		outcomes := make([]string, 0, len(st.ByOutcome))
		for o := range st.ByOutcome {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Fprintf(out, "  %-20s %d\n", o, st.ByOutcome[o])
		}

		if len(st.Stages) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tATTEMPTS\tFAILURES\tFAIL%\tAVG")
		for _, s := range st.Stages {
			rate := 0.0
			if s.Attempts > 0 {
				rate = float64(s.Failures) / float64(s.Attempts) * 100
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%s\n", s.Stage, s.Attempts, s.Failures, rate, s.AvgDuration.Round(time.Millisecond))
		}
		return w.Flush()
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run from the history and its saved state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.DeleteRun(args[0]); err != nil {
			return err
		}
		if err := pipeline.NewStore(cfg.Analyzer.StateDir).Delete(args[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		return nil
	},
}

var runsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the run history tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to erase run history without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run history erased.")
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func init() {
	runsListCmd.Flags().String("repo", "", "only list runs for this repository")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")
	runsListCmd.Flags().String("format", "text", "Output format: text or json")
	runsShowCmd.Flags().Bool("state", false, "print the saved run state JSON instead")
	runsResetCmd.Flags().Bool("yes", false, "confirm erasing the history")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsResetCmd)
}
