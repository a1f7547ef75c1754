package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/xenopipe/internal/resources"
	"github.com/maxkimambo/xenopipe/internal/utils"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resources each task will request",
	Long: `Estimates the allocation of every task from the size of the external inputs.

Tasks that only read external inputs are sized exactly. The disk of tasks that
read outputs of other tasks depends on sizes known only at run time, so their
disk formula is shown instead.

Example:
xenopipe plan --builtin xenograft --inputs sample.yaml
`,
	PreRunE: validateWorkflowFlags,
	RunE:    runPlan,
}

func init() {
	addWorkflowFlags(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g, err := loadGraph(true)
	if err != nil {
		return err
	}

	table, err := planTable(g, cfg.Estimator())
	if err != nil {
		return err
	}
	printOut(table.String())
	return nil
}

func planTable(g *workflow.Graph, est *resources.Estimator) (*utils.Table, error) {
	table := utils.NewTable("TASK", "CPU", "MEMORY GB", "DISK GB", "PREEMPTIBLE", "IMAGE").AlignRight(1, 2, 3)

	for _, spec := range graphTasks(g) {
		sizes, known := externalSizes(g, spec)
		alloc, err := est.Estimate(spec, sizes)
		if err != nil {
			return nil, err
		}

		disk := strconv.Itoa(alloc.DiskGB)
		if !known {
			disk = fmt.Sprintf("%g + %g x inputs", spec.Resources.Disk.BaseGB, spec.Resources.Disk.Multiplier)
		}
		preemptible := "no"
		if spec.Preemptible {
			preemptible = fmt.Sprintf("yes (%d retries)", spec.MaxRetries)
		}

		table.AddRow(spec.Name, strconv.Itoa(alloc.CPU), strconv.Itoa(alloc.MemoryGB), disk, preemptible, alloc.Image)
	}
	return table, nil
}

// externalSizes returns the input sizes of a task that reads only external
// inputs. known is false as soon as one input is produced by another task.
func externalSizes(g *workflow.Graph, spec workflow.TaskSpec) (sizes []int64, known bool) {
	for _, in := range spec.Inputs {
		if !in.Ref.IsExternal() {
			return nil, false
		}
		ext, _ := g.External(in.Ref.Output)
		sizes = append(sizes, ext.SizeBytes)
	}
	return sizes, true
}
