package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/executor"
	"github.com/teranos/flowstate/logger"
	"github.com/teranos/flowstate/retention"
	"github.com/teranos/flowstate/retry"
)

// LogsCmd represents the logs command
var LogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read, upload and expire job logs",
	Long: `logs - Read, upload and expire chunked job logs

Logs are keyed by execution, log name, attempt and rerun generation and
stored in fixed-size chunks. Reads return whole UTF-8 characters only.

Examples:
  flowstate logs fetch 42 extract --start 0 --length 65536
  flowstate logs fetch 42 extract --attempt 1 --generation 0
  flowstate logs upload 42 extract extract.log extract.err.log
  flowstate logs sweep                   # One retention pass
  flowstate logs sweep --watch           # Sweep every retention.sweep_interval_seconds`,
}

var logsFetchCmd = &cobra.Command{
	Use:   "fetch <exec-id> <name>",
	Short: "Print a byte window of a log",
	Args:  cobra.ExactArgs(2),
	RunE:  runLogsFetch,
}

var logsUploadCmd = &cobra.Command{
	Use:   "upload <exec-id> <name> <file>...",
	Short: "Upload files, concatenated, as one log stream",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runLogsUpload,
}

var logsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete chunks older than retention.log_days",
	RunE:  runLogsSweep,
}

var (
	logAttempt    int
	logGeneration int
	logStart      int64
	logLength     int
	sweepWatch    bool
	uploadRerun   bool
)

func init() {
	for _, c := range []*cobra.Command{logsFetchCmd, logsUploadCmd} {
		c.Flags().IntVar(&logAttempt, "attempt", 0, "Attempt number")
		c.Flags().IntVar(&logGeneration, "generation", -1, "Rerun generation (default: the execution's latest)")
	}
	logsFetchCmd.Flags().Int64Var(&logStart, "start", 0, "First byte to read")
	logsFetchCmd.Flags().IntVar(&logLength, "length", executor.DefaultChunkSize, "Bytes to read")
	logsUploadCmd.Flags().BoolVar(&uploadRerun, "rerun", false, "Upload under a new rerun generation")
	logsSweepCmd.Flags().BoolVar(&sweepWatch, "watch", false, "Keep sweeping until interrupted")

	LogsCmd.AddCommand(logsFetchCmd)
	LogsCmd.AddCommand(logsUploadCmd)
	LogsCmd.AddCommand(logsSweepCmd)
}

func runLogsFetch(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	var data *executor.LogData
	if logGeneration >= 0 {
		data, err = loader.Logs.FetchGeneration(ctx, execID, args[1], logAttempt, logGeneration, logStart, logLength)
	} else {
		data, err = loader.Logs.Fetch(ctx, execID, args[1], logAttempt, logStart, logLength)
	}
	if err != nil {
		return err
	}
	if data == nil {
		pterm.Info.Printfln("Nothing at or after byte %d", logStart)
		return nil
	}

	if _, err := cmd.OutOrStdout().Write(data.Data); err != nil {
		return err
	}
	logger.Logger.Debugw("Log window", logger.FieldLogName, args[1], "offset", data.Offset, "length", data.Length)
	return nil
}

func runLogsUpload(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	gen := logGeneration
	switch {
	case gen >= 0:
	case uploadRerun:
		gen, err = loader.Reruns.NextGeneration(ctx, execID)
	default:
		gen, err = loader.Reruns.MaxGenerationForExecution(ctx, execID)
	}
	if err != nil {
		return err
	}
	key := executor.LogKey{ExecID: execID, Name: args[1], Attempt: logAttempt, Generation: gen}

	n, err := loader.Logs.UploadFiles(ctx, key, args[2:]...)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Uploaded %d bytes to %s attempt %d generation %d of execution %d",
		n, args[1], logAttempt, gen, execID)
	return nil
}

func runLogsSweep(cmd *cobra.Command, args []string) error {
	loader, cfg, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	sweeper := retention.NewSweeper(loader.Logs, retention.Config{
		MaxAge:   cfg.Retention.LogRetention(),
		Interval: cfg.Retention.SweepInterval(),
		Retry: retry.Policy{
			MaxAttempts: cfg.Heartbeat.MaxRetries,
			PerSecond:   cfg.Heartbeat.RetriesPerSecond,
		},
	}, logger.Logger)
	if !sweeper.Enabled() {
		pterm.Info.Println("Log retention is disabled (retention.log_days = 0)")
		return nil
	}

	if !sweepWatch {
		n, err := sweeper.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Deleted %d chunks older than %d days", n, cfg.Retention.LogDays)
		return nil
	}

	ctx, stop := signalContext()
	defer stop()
	sweeper.Start()
	pterm.Info.Printfln("Sweeping logs older than %d days every %s (Ctrl-C to stop)",
		cfg.Retention.LogDays, cfg.Retention.SweepInterval())
	<-ctx.Done()
	sweeper.Stop()

	sweeps, deleted := sweeper.Stats()
	pterm.Success.Printfln("Stopped after %d sweeps, %d chunks deleted", sweeps, deleted)
	return nil
}
