package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/executor"
	"github.com/teranos/flowstate/heartbeat"
	"github.com/teranos/flowstate/logger"
	"github.com/teranos/flowstate/retry"
)

// FlowsCmd represents the flows command
var FlowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Query flow executions",
	Long: `flows - Query flow executions and the active registry

Examples:
  flowstate flows history --project 3 --flow nightly --limit 20
  flowstate flows history --status FAILED --after 2026-01-01
  flowstate flows show 42 --format yaml
  flowstate flows active
  flowstate flows attach 42 --host exec-1 --port 12321`,
}

var flowsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List executions, newest first",
	RunE:  runFlowsHistory,
}

var flowsShowCmd = &cobra.Command{
	Use:   "show <exec-id>",
	Short: "Show one execution including its graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsShow,
}

var flowsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List executions registered as active",
	RunE:  runFlowsActive,
}

var flowsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count executions, optionally of one flow or job",
	RunE:  runFlowsCount,
}

var flowsAttachCmd = &cobra.Command{
	Use:   "attach <exec-id>",
	Short: "Register an execution as active and heartbeat it until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsAttach,
}

var (
	histProject     int
	histProjectLike string
	histFlow        string
	histFlowLike    string
	histUser        string
	histStatus      string
	histAfter       string
	histBefore      string
	histOffset      int
	histLimit       int

	showFormat string

	countProject int
	countFlow    string
	countJob     string

	attachHost string
	attachPort int
)

func init() {
	f := flowsHistoryCmd.Flags()
	f.IntVar(&histProject, "project", 0, "Project id")
	f.StringVar(&histProjectLike, "project-like", "", "Substring of the project name")
	f.StringVar(&histFlow, "flow", "", "Exact flow id")
	f.StringVar(&histFlowLike, "flow-like", "", "Substring of the flow id")
	f.StringVar(&histUser, "user", "", "Substring of the submitting user")
	f.StringVar(&histStatus, "status", "", "Status name, e.g. FAILED")
	f.StringVar(&histAfter, "after", "", "Started after (RFC 3339 or YYYY-MM-DD)")
	f.StringVar(&histBefore, "before", "", "Ended before (RFC 3339 or YYYY-MM-DD)")
	f.IntVar(&histOffset, "offset", 0, "Rows to skip")
	f.IntVar(&histLimit, "limit", 25, "Maximum rows (0 = all)")

	flowsShowCmd.Flags().StringVar(&showFormat, "format", "json", "Output format: json, yaml, toml")

	flowsCountCmd.Flags().IntVar(&countProject, "project", 0, "Project id (with --flow or --job)")
	flowsCountCmd.Flags().StringVar(&countFlow, "flow", "", "Count executions of this flow")
	flowsCountCmd.Flags().StringVar(&countJob, "job", "", "Count executions containing this job")

	flowsAttachCmd.Flags().StringVar(&attachHost, "host", "", "Executor host (default: this host)")
	flowsAttachCmd.Flags().IntVar(&attachPort, "port", 0, "Executor port")

	FlowsCmd.AddCommand(flowsHistoryCmd)
	FlowsCmd.AddCommand(flowsShowCmd)
	FlowsCmd.AddCommand(flowsActiveCmd)
	FlowsCmd.AddCommand(flowsCountCmd)
	FlowsCmd.AddCommand(flowsAttachCmd)
}

func historyFilter() (executor.HistoryFilter, error) {
	filter := executor.HistoryFilter{
		ProjectID:       histProject,
		ProjectContains: histProjectLike,
		FlowID:          histFlow,
		FlowContains:    histFlowLike,
		UserContains:    histUser,
		Offset:          histOffset,
		Limit:           histLimit,
	}
	if histStatus != "" {
		status, err := executor.ParseStatus(histStatus)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	var err error
	if filter.StartedAfter, err = parseTimeFlag("after", histAfter); err != nil {
		return filter, err
	}
	if filter.EndedBefore, err = parseTimeFlag("before", histBefore); err != nil {
		return filter, err
	}
	return filter, nil
}

func runFlowsHistory(cmd *cobra.Command, args []string) error {
	filter, err := historyFilter()
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	flows, err := loader.Flows.FetchHistory(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		pterm.Info.Println("No executions match")
		return nil
	}

	data := pterm.TableData{{"Exec", "Project", "Flow", "Version", "Status", "User", "Submitted", "Started", "Ended"}}
	for _, f := range flows {
		data = append(data, []string{
			strconv.FormatInt(f.ExecID, 10),
			f.ProjectName,
			f.FlowID,
			strconv.Itoa(f.Version),
			f.Status.String(),
			f.SubmitUser,
			formatTime(f.SubmitTime),
			formatTime(f.StartTime),
			formatTime(f.EndTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runFlowsShow(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	flow, err := loader.Flows.FetchByID(cmd.Context(), execID)
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), showFormat, flow)
}

func runFlowsActive(cmd *cobra.Command, args []string) error {
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	active, err := loader.Flows.FetchActive(cmd.Context())
	if err != nil {
		return err
	}
	if len(active) == 0 {
		pterm.Info.Println("No active executions")
		return nil
	}

	ids := make([]int64, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data := pterm.TableData{{"Exec", "Flow", "Status", "Host", "Port", "Last heartbeat"}}
	for _, id := range ids {
		a := active[id]
		data = append(data, []string{
			strconv.FormatInt(id, 10),
			a.Flow.FlowID,
			a.Flow.Status.String(),
			a.Reference.Host,
			strconv.Itoa(a.Reference.Port),
			formatTime(a.Reference.UpdateTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runFlowsCount(cmd *cobra.Command, args []string) error {
	if countFlow != "" && countJob != "" {
		return errors.NewInvalidRequestError("--flow and --job are mutually exclusive")
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()
	ctx := cmd.Context()

	var n int
	switch {
	case countFlow != "":
		n, err = loader.Flows.CountForFlow(ctx, countProject, countFlow)
	case countJob != "":
		n, err = loader.Flows.CountForJob(ctx, countProject, countJob)
	default:
		n, err = loader.Flows.Count(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runFlowsAttach(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	host := attachHost
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return errors.Wrap(err, "failed to determine hostname")
		}
	}

	loader, cfg, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, stop := signalContext()
	defer stop()

	ref := &executor.ExecutionReference{ExecID: execID, Host: host, Port: attachPort, UpdateTime: time.Now()}
	if err := loader.Active.Add(ctx, ref); err != nil {
		return err
	}

	runner := heartbeat.NewRunnerWithContext(ctx, loader.Active, execID, heartbeat.Config{
		Interval: cfg.Heartbeat.Interval(),
		Retry: retry.Policy{
			MaxAttempts: cfg.Heartbeat.MaxRetries,
			PerSecond:   cfg.Heartbeat.RetriesPerSecond,
		},
	}, logger.Logger)
	runner.Start()
	pterm.Info.Printfln("Execution %d registered on %s:%d; heartbeating every %s (Ctrl-C to detach)",
		execID, host, attachPort, cfg.Heartbeat.Interval())

	select {
	case <-ctx.Done():
	case <-runner.Done():
	}
	runner.Stop()

	if runner.Lost() {
		pterm.Warning.Printfln("Execution %d was removed from the registry by another process", execID)
		return nil
	}

	// ctx is already cancelled; removal gets its own deadline
	removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loader.Active.Remove(removeCtx, execID); err != nil {
		return err
	}
	pterm.Success.Printfln("Execution %d detached after %d heartbeats", execID, runner.Beats())
	return nil
}
