package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rootcause/internal/logparse"
)

var parseCmd = &cobra.Command{
	Use:   "parse <log-file>",
	Short: "Extract the primary error from a saved build log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		res := newParser(cfg).ParseFile(args[0])

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal parse result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			printParseResult(cmd.OutOrStdout(), res)
		}

		if !res.Success {
			return fmt.Errorf("parse %s: %s", args[0], res.Summary)
		}
		return nil
	},
}

func printParseResult(w io.Writer, res logparse.Result) {
	fmt.Fprintf(w, "Summary: %s\n", res.Summary)
	fmt.Fprintf(w, "Lines: %d   Errors: %d\n", res.TotalLines, res.ErrorCount)
	p := res.Primary
	if p == nil {
		return
	}
	fmt.Fprintf(w, "\nPrimary error\n")
	fmt.Fprintf(w, "  Type:     %s\n", p.ErrorType)
	fmt.Fprintf(w, "  Message:  %s\n", p.ErrorMessage)
	fmt.Fprintf(w, "  Category: %s\n", p.Category)
	if p.FailedStep != "" {
		fmt.Fprintf(w, "  Step:     %s\n", p.FailedStep)
	}
	if p.ExitCode != nil {
		fmt.Fprintf(w, "  Exit:     %d\n", *p.ExitCode)
	}
	if len(p.StackFrames) > 0 {
		fmt.Fprintln(w, "  Stack:")
		for _, f := range p.StackFrames {
			fmt.Fprintf(w, "    %s:%d in %s\n", f.File, f.Line, f.Function)
		}
	}
	for _, l := range p.RelevantLines {
		fmt.Fprintf(w, "  > %s\n", l)
	}
}

func init() {
	parseCmd.Flags().Bool("json", false, "print the parse result as JSON")
}
