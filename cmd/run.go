package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/maxkimambo/xenopipe/internal/archive"
	"github.com/maxkimambo/xenopipe/internal/config"
	"github.com/maxkimambo/xenopipe/internal/dag"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/publish"
	"github.com/maxkimambo/xenopipe/internal/utils"
)

var (
	runID      string
	reportPath string
	noProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow",
	Long: `Executes a workflow, either from a YAML file or the built-in xenograft pipeline.

Tasks run as soon as their inputs are recorded, up to --max-parallel at once.
Preemptible tasks are retried with exponential backoff when the backend reports
preemption, timeout or resource exhaustion; a task that fails for good cancels
everything downstream of it while independent branches keep running.

When the run succeeds and a publish destination is configured, final outputs
are copied to a local directory or uploaded to s3://bucket/prefix.

Example:
xenopipe run --builtin xenograft --inputs sample.yaml --max-parallel 8
xenopipe run --workflow qc.yaml --backend docker --gc --publish s3://results/qc
`,
	PreRunE: validateWorkflowFlags,
	RunE:    runWorkflow,
}

func init() {
	addWorkflowFlags(runCmd)
	runCmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Number of tasks to run concurrently")
	runCmd.Flags().StringVar(&workDir, "work-dir", "", "Root directory for run work dirs")
	runCmd.Flags().StringVar(&backendKind, "backend", "", "Execution backend: local or docker")
	runCmd.Flags().DurationVar(&taskTimeout, "timeout", 0, "Default per-attempt timeout (0 disables)")
	runCmd.Flags().BoolVar(&collect, "gc", false, "Delete intermediate artifacts once every consumer has finished")
	runCmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not record the run in the run archive")
	runCmd.Flags().StringVar(&publishDest, "publish", "", "Copy final outputs to a directory or s3://bucket/prefix")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Use this run id instead of a generated one")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write a run report; .json and .dot select the format, anything else is text")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	graph, err := loadGraph(true)
	if err != nil {
		return err
	}

	be, err := cfg.NewBackend()
	if err != nil {
		return err
	}

	exec := dag.NewExecutor(graph, be, cfg.Estimator(), cfg.ExecutorConfig())
	if runID != "" {
		exec.SetRunID(runID)
	}

	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			logger.User.Warnf("Run archive disabled: %v", err)
		} else {
			defer arch.Close()
			exec.SetRecorder(arch)
		}
	}

	if bar := newProgressBar(graph.Size()); bar != nil {
		exec.AddObserver(func(task string, from, to dag.TaskState) {
			if to.IsTerminal() {
				_ = bar.Add(1)
			}
		})
		defer bar.Finish()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, execErr := exec.Execute(ctx)
	if result == nil {
		return execErr
	}

	if reportPath != "" {
		if err := writeReport(dag.NewRunVisualization(graph, result), reportPath); err != nil {
			logger.User.Warnf("Failed to write run report: %v", err)
		} else {
			logger.User.Infof("Run report written to %s", reportPath)
		}
	}

	var published []publish.Published
	if result.Success && cfg.Publish.Destination != "" {
		published, err = publishOutputs(context.WithoutCancel(ctx), cfg, result)
		if err != nil {
			printOut(summaryBox(result, published).Render())
			return err
		}
	}

	printOut(summaryBox(result, published).Render())

	if execErr != nil {
		return execErr
	}
	if !result.Success {
		if result.Error != nil {
			return result.Error
		}
		return fmt.Errorf("workflow %s did not complete", result.Workflow)
	}
	return nil
}

// newProgressBar returns nil when the bar would interleave with log output
// that is not meant for a terminal
func newProgressBar(total int) *progressbar.ProgressBar {
	if noProgress || quiet || jsonLogs || verbose || debug || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("⏳ tasks"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func publishOutputs(ctx context.Context, cfg *config.Config, result *dag.ExecutionResult) ([]publish.Published, error) {
	p, err := publish.New(cfg.Publish.Destination, cfg.S3Options())
	if err != nil {
		return nil, err
	}
	logger.User.Startingf("Publishing final outputs to %s", p)
	return publish.Outputs(ctx, p, result.FinalOutputs)
}

func writeReport(v *dag.RunVisualization, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return v.ExportToJSON(path)
	case ".dot", ".gv":
		return v.ExportToDOT(path)
	default:
		return v.ExportToText(path)
	}
}

func summaryBox(result *dag.ExecutionResult, published []publish.Published) *utils.Box {
	kind := utils.SuccessBox
	title := fmt.Sprintf("Workflow %s completed", result.Workflow)
	if !result.Success {
		kind = utils.ErrorBox
		title = fmt.Sprintf("Workflow %s failed", result.Workflow)
	}

	box := utils.NewBox(kind, title).
		AddKeyValue("Run", result.RunID).
		AddKeyValue("Duration", result.ExecutionTime.Round(time.Second)).
		AddKeyValue("Succeeded", len(result.TasksIn(dag.StateSucceeded)))

	if failed := result.TasksIn(dag.StateFailedFinal); len(failed) > 0 {
		box.AddKeyValue("Failed", len(failed))
		for _, name := range failed {
			box.AddBullet(fmt.Sprintf("%s: %s", name, result.Results[name].ErrorMessage))
		}
	}
	if cancelled := result.TasksIn(dag.StateCancelled); len(cancelled) > 0 {
		box.AddKeyValue("Cancelled", strings.Join(cancelled, ", "))
	}

	if len(published) > 0 {
		box.AddLine("Published:")
		for _, p := range published {
			box.AddBullet(p.Destination)
		}
		return box
	}

	refs := make([]string, 0, len(result.FinalOutputs))
	for ref := range result.FinalOutputs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	if len(refs) > 0 {
		box.AddLine("Final outputs:")
	}
	for _, ref := range refs {
		for _, art := range result.FinalOutputs[ref] {
			box.AddBullet(fmt.Sprintf("%s: %s", ref, art.Path))
		}
	}
	return box
}
