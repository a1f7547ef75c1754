package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/xenopipe/internal/archive"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/utils"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List archived runs, or show the tasks of one run",
	Long: `Reads the run archive. Without arguments the most recent runs are listed;
with a run id every task record of that run is shown.

Example:
xenopipe history --limit 5
xenopipe history 3f2c9a1e-5b7d-4e0a-9f61-2d8c7b4a1e90
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 lists all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Archive.Path); errors.Is(err, os.ErrNotExist) {
		logger.User.Infof("No runs archived yet at %s", cfg.Archive.Path)
		return nil
	}

	arch, err := archive.Open(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer arch.Close()

	if len(args) == 1 {
		run, err := arch.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOut(describeRun(run))
		return nil
	}

	runs, err := arch.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		logger.User.Info("No runs archived yet")
		return nil
	}
	printOut(runsTable(runs).String())
	return nil
}

func runsTable(runs []archive.RunRecord) *utils.Table {
	table := utils.NewTable("RUN", "WORKFLOW", "STATUS", "TASKS", "OK", "FAILED", "CANCELLED", "STARTED", "DURATION").
		AlignRight(3, 4, 5, 6)
	for _, r := range runs {
		table.AddRow(
			r.RunID,
			r.Workflow,
			r.Status,
			strconv.Itoa(r.TaskCount),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Cancelled),
			r.StartTime.Local().Format(time.DateTime),
			formatDuration(r.Duration()),
		)
	}
	return table
}

func describeRun(run *archive.RunRecord) string {
	rb := utils.NewReportBuilder().
		Header(fmt.Sprintf("Run %s", run.RunID)).
		AddKeyValue("Workflow", run.Workflow).
		AddKeyValue("Status", run.Status).
		AddKeyValue("Backend", run.Backend).
		AddKeyValue("Run dir", run.RunDir).
		AddKeyValue("Started", run.StartTime.Local().Format(time.DateTime)).
		AddKeyValue("Duration", formatDuration(run.Duration()))
	if run.Error.Valid {
		rb.AddKeyValue("Error", run.Error.String)
	}

	tasks := utils.NewTable("TASK", "STATE", "ATTEMPTS", "EXIT", "ALLOCATION", "DURATION", "ERROR").AlignRight(2, 3)
	for _, t := range run.Tasks {
		alloc := ""
		if a, err := t.DecodeAllocation(); err == nil && a.CPU > 0 {
			alloc = a.String()
		}
		tasks.AddRow(t.Task, t.State, strconv.Itoa(t.Attempts), strconv.Itoa(t.ExitCode),
			alloc, formatDuration(t.Duration()), t.ErrorKind)
	}
	rb.Section("Tasks").AddLine(tasks.String())

	if finals, err := run.DecodeFinalOutputs(); err == nil && len(finals) > 0 {
		refs := make([]string, 0, len(finals))
		for ref := range finals {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		rb.Section("Final outputs")
		for _, ref := range refs {
			for _, art := range finals[ref] {
				rb.AddIndented(fmt.Sprintf("%s: %s", ref, art.Path), 1)
			}
		}
	}
	return rb.Build()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
