package commands

import (
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/executor"
	"github.com/teranos/flowstate/props"
)

// JobsCmd represents the jobs command
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Query job attempts",
	Long: `jobs - Query job attempts, their history and properties

Examples:
  flowstate jobs attempts 42 extract
  flowstate jobs history 3 extract --size 50
  flowstate jobs props 42 extract
  flowstate jobs attachments 42 extract`,
}

var jobsAttemptsCmd = &cobra.Command{
	Use:   "attempts <exec-id> <job-id>",
	Short: "List every attempt of a job in one execution",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsAttempts,
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <project-id> <job-id>",
	Short: "List a job's attempts across executions, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsHistory,
}

var jobsPropsCmd = &cobra.Command{
	Use:   "props <exec-id> <job-id>",
	Short: "Show input and output properties of a job's latest attempt",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsProps,
}

var jobsAttachmentsCmd = &cobra.Command{
	Use:   "attachments <exec-id> <job-id>",
	Short: "Print the latest attempt's attachments",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsAttachments,
}

var (
	historySkip int
	historySize int
	attachFmt   string
)

func init() {
	jobsHistoryCmd.Flags().IntVar(&historySkip, "skip", 0, "Rows to skip")
	jobsHistoryCmd.Flags().IntVar(&historySize, "size", 25, "Maximum rows")
	jobsAttachmentsCmd.Flags().StringVar(&attachFmt, "format", "json", "Output format: json, yaml")

	JobsCmd.AddCommand(jobsAttemptsCmd)
	JobsCmd.AddCommand(jobsHistoryCmd)
	JobsCmd.AddCommand(jobsPropsCmd)
	JobsCmd.AddCommand(jobsAttachmentsCmd)
}

func renderAttempts(infos []*executor.JobNodeInfo) error {
	data := pterm.TableData{{"Exec", "Flow path", "Job", "Attempt", "Gen", "Status", "Started", "Ended"}}
	for _, n := range infos {
		data = append(data, []string{
			strconv.FormatInt(n.ExecID, 10),
			n.FlowPath,
			n.JobID,
			strconv.Itoa(n.Attempt),
			strconv.Itoa(n.RerunGeneration),
			n.Status.String(),
			formatTime(n.StartTime),
			formatTime(n.EndTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsAttempts(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	infos, err := loader.Nodes.FetchAttempts(cmd.Context(), execID, args[1])
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return errors.NewNotFoundError("job %s has no attempts in execution %d", args[1], execID)
	}
	return renderAttempts(infos)
}

func runJobsHistory(cmd *cobra.Command, args []string) error {
	projectID, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.NewInvalidRequestError("invalid project id %q", args[0])
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	infos, err := loader.Nodes.FetchJobHistory(cmd.Context(), projectID, args[1], historySkip, historySize)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		pterm.Info.Println("No attempts recorded")
		return nil
	}
	return renderAttempts(infos)
}

func renderProps(title string, p *props.Props) error {
	pterm.DefaultSection.Println(title)
	if p == nil {
		pterm.Println("(none)")
		return nil
	}
	flat := p.Flatten()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := pterm.TableData{{"Key", "Value"}}
	for _, k := range keys {
		data = append(data, []string{k, flat[k]})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsProps(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	in, out, err := loader.Nodes.FetchInputOutputProps(cmd.Context(), execID, args[1])
	if err != nil {
		return err
	}
	if err := renderProps("Input", in); err != nil {
		return err
	}
	return renderProps("Output", out)
}

func runJobsAttachments(cmd *cobra.Command, args []string) error {
	execID, err := parseExecID(args[0])
	if err != nil {
		return err
	}
	loader, _, closeDB, err := openLoader()
	if err != nil {
		return err
	}
	defer closeDB()

	attachments, err := loader.Attachments.Fetch(cmd.Context(), execID, args[1])
	if err != nil {
		return err
	}
	if attachments == nil {
		pterm.Info.Println("No attachments recorded")
		return nil
	}
	return writeFormatted(cmd.OutOrStdout(), attachFmt, attachments)
}
