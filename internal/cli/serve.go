package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/rootcause/internal/pipeline"
	"github.com/lucasnoah/rootcause/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history dashboard, JSON API and metrics",
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

		addr, _ := cmd.Flags().GetString("addr")
		srv := web.NewServer(d, pipeline.NewStore(cfg.Analyzer.StateDir), addr, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving run history on http://%s\n", addr)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8088", "listen address")
}
