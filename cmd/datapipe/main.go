package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unosaa/datapipe/internal/errs"
)

var rootCmd = &cobra.Command{
	Use:   "datapipe <command>",
	Short: "UN-OSAA data pipeline orchestrator",
	Long: `datapipe is the container entrypoint for the UN-OSAA data pipeline.
It sequences the external ingest and SQLMesh jobs, syncs the DuckDB state
database with S3 between runs, and promotes artifacts between environments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Unknown and missing verbs print usage and exit 1 without
		// touching anything external.
		fmt.Fprintln(cmd.ErrOrStderr(), cmd.UsageString())
		if len(args) == 0 {
			return errs.Usagef("missing command")
		}
		return errs.Usagef("unknown command %q", args[0])
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}
}
