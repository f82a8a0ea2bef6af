package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/cmd/flowstate/commands"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
)

var rootCmd = &cobra.Command{
	Use:   "flowstate",
	Short: "flowstate - execution-state persistence for workflow runs",
	Long: `flowstate - execution-state persistence for workflow runs.

Inspect and maintain the database that records flow executions, job
attempts, active executions and chunked job logs.

Available commands:
  am      - Manage flowstate configuration ("I am")
  db      - Apply schema migrations
  flows   - Query executions and the active registry
  jobs    - Query job attempts and their properties
  logs    - Read, upload and expire job logs
  version - Show build information

Examples:
  flowstate am show                       # Show current configuration
  flowstate db migrate                    # Create or upgrade the schema
  flowstate flows history --project 3     # Recent executions of project 3
  flowstate logs fetch 42 extract --start 0 --length 4096`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		logger.Debugw("Logger initialized", "level", logger.LevelName(verbosity), "json", jsonLogs)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON on stderr")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.FlowsCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.LogsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
