package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rootcause/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List or install the model prompt templates",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in prompt templates",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range prompt.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var promptsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the built-in templates into the prompts directory for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Analyzer.PromptsDir
		}
		written, err := prompt.InstallBuiltin(dir)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		}
		if len(written) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "All templates already present in %s\n", dir)
		}
		return nil
	},
}

func init() {
	promptsInstallCmd.Flags().String("dir", "", "target directory (default: analyzer.prompts_dir)")
	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsInstallCmd)
}
