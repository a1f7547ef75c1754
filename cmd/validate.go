package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/utils"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a workflow and print its execution order",
	Long: `Builds the workflow graph without running anything: every input must resolve to
an external input or to an output declared by another task, names must be
unique and the dependencies must not form a cycle.

Input files are not opened, so a workflow can be validated away from its data.

Example:
xenopipe validate --workflow qc.yaml
xenopipe validate --builtin xenograft --inputs sample.yaml --publish-bam
`,
	PreRunE: validateWorkflowFlags,
	RunE:    runValidate,
}

func init() {
	addWorkflowFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	g, err := loadGraph(false)
	if err != nil {
		return err
	}

	logger.User.Successf("Workflow %s is valid", g.Name())
	printOut(describeGraph(g))
	return nil
}

func describeGraph(g *workflow.Graph) string {
	rb := utils.NewReportBuilder().
		Header("Workflow " + g.Name()).
		AddKeyValue("Tasks", g.Size()).
		AddKeyValue("External inputs", len(g.Externals()))

	rb.Section("Execution order")
	for i, spec := range graphTasks(g) {
		rb.AddNumbered(i+1, spec.Name)
		if deps := g.Dependencies(spec.Name); len(deps) > 0 {
			rb.AddIndented("after: "+strings.Join(deps, ", "), 1)
		}
	}

	rb.Section("Final outputs")
	for _, ref := range g.FinalOutputs() {
		rb.AddIndented(ref.String(), 1)
	}
	return rb.Build()
}
