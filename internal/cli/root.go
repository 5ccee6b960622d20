package cli

import (
	"fmt"
	"os"

	"github.com/rustyeddy/creditrisk/internal/cli/config"
	"github.com/rustyeddy/creditrisk/internal/cli/manage"
	"github.com/rustyeddy/creditrisk/internal/cli/run"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func NewRootCmd() *cobra.Command {
	rc := &config.RootConfig{}

	cmd := &cobra.Command{
		Use:           "creditrisk",
		Short:         "Credit risk engine: analytics, early warning, stress tests and regulatory reporting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (yaml or json, optional)")
	cmd.PersistentFlags().StringVar(&rc.Mode, "mode", "", "Data mode: demo|real (default from config)")
	cmd.PersistentFlags().StringVar(&rc.DBPath, "db", "", "SQLite database path (overrides --mode)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&rc.AsOf, "as-of", "", "Reporting date YYYY-MM-DD (default today)")
	cmd.PersistentFlags().StringVar(&rc.Format, "format", "text", "Output format: text|org")
	cmd.PersistentFlags().BoolVar(&rc.NoColor, "no-color", false, "Disable colored log output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["skip-config"] == "true" {
			return nil
		}
		return rc.Load()
	}

	cmd.AddCommand(
		run.NewAnalyzeCmd(rc),
		run.NewEarlyWarningCmd(rc),
		run.NewStressTestCmd(rc),
		run.NewRegulatoryCmd(rc),
		run.NewFullReportCmd(rc),
		manage.NewConfigCmd(rc),
		manage.NewDBCmd(rc),
		manage.NewRatingCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skip-config": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "creditrisk %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
