package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/xenopipe/internal/config"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/pipeline"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

const builtinXenograft = "xenograft"

// workflow source flags, shared by run, validate and plan
var (
	workflowFile      string
	builtinName       string
	inputsFile        string
	contaminantPrefix string
	publishBAM        bool
	onDemand          bool
)

// run overrides of config values
var (
	maxParallel int
	workDir     string
	backendKind string
	taskTimeout time.Duration
	collect     bool
	noArchive   bool
	publishDest string
)

func addWorkflowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&workflowFile, "workflow", "w", "", "Workflow YAML file")
	cmd.Flags().StringVar(&builtinName, "builtin", "", "Built-in workflow to use instead of a file (xenograft)")
	cmd.Flags().StringVarP(&inputsFile, "inputs", "i", "", "Sample inputs YAML for the built-in workflow")
	cmd.Flags().StringVar(&contaminantPrefix, "contaminant-prefix", "", "Reference name prefix of host contigs (default: mm10_)")
	cmd.Flags().BoolVar(&publishBAM, "publish-bam", false, "Keep the cleaned BAM and its index as final outputs")
	cmd.Flags().BoolVar(&onDemand, "on-demand", false, "Mark built-in tasks non-preemptible so they are never retried")
}

func validateWorkflowFlags(cmd *cobra.Command, args []string) error {
	switch {
	case workflowFile != "" && builtinName != "":
		return wferrors.NewConfigurationError("workflow", "--workflow and --builtin are mutually exclusive")
	case workflowFile == "" && builtinName == "":
		return wferrors.NewConfigurationError("workflow", "one of --workflow or --builtin is required")
	case builtinName != "" && builtinName != builtinXenograft:
		return wferrors.NewConfigurationError("builtin", fmt.Sprintf("unknown built-in workflow '%s' (want %s)", builtinName, builtinXenograft))
	case builtinName != "" && inputsFile == "":
		return wferrors.NewConfigurationError("inputs", "--inputs is required with --builtin")
	case workflowFile != "" && inputsFile != "":
		return wferrors.NewConfigurationError("inputs", "--inputs only applies to --builtin workflows")
	}
	return nil
}

// loadConfig loads the config file and environment, then applies flags the
// user set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-parallel") {
		cfg.MaxParallelTasks = maxParallel
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = workDir
	}
	if flags.Changed("backend") {
		cfg.Backend.Kind = strings.ToLower(backendKind)
	}
	if flags.Changed("timeout") {
		cfg.TaskTimeout = taskTimeout
	}
	if flags.Changed("gc") {
		cfg.CollectIntermediates = collect
	}
	if flags.Changed("no-archive") {
		cfg.Archive.Enabled = !noArchive
	}
	if flags.Changed("publish") {
		cfg.Publish.Destination = publishDest
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadWorkflow declares the workflow from --workflow or --builtin
func loadWorkflow() (*workflow.Workflow, error) {
	if workflowFile != "" {
		return workflow.Load(workflowFile)
	}

	in, err := pipeline.LoadInputs(inputsFile)
	if err != nil {
		return nil, err
	}
	opts := pipeline.DefaultOptions()
	if contaminantPrefix != "" {
		opts.ContaminantPrefix = contaminantPrefix
	}
	opts.PublishBAM = publishBAM
	if onDemand {
		opts.Preemptible = false
	}
	return pipeline.Xenograft(opts, in)
}

// loadGraph builds the graph. With statInputs, external inputs without a
// declared size are sized from disk, which requires them to exist.
func loadGraph(statInputs bool) (*workflow.Graph, error) {
	wf, err := loadWorkflow()
	if err != nil {
		return nil, err
	}
	if statInputs {
		if err := workflow.StatInputs(wf.Inputs); err != nil {
			return nil, err
		}
	}

	g, err := workflow.Build(wf)
	if err != nil {
		return nil, err
	}
	logger.Op.WithFields(map[string]interface{}{
		"workflow": g.Name(),
		"tasks":    g.Size(),
	}).Debug("workflow graph built")
	return g, nil
}

// graphTasks lists the tasks of g in execution order
func graphTasks(g *workflow.Graph) []workflow.TaskSpec {
	specs := make([]workflow.TaskSpec, 0, g.Size())
	for _, name := range g.TopologicalOrder() {
		spec, _ := g.Spec(name)
		specs = append(specs, spec)
	}
	return specs
}

// printOut writes command output to stdout unless --quiet is set
func printOut(s string) {
	if quiet {
		return
	}
	fmt.Fprintln(os.Stdout, s)
}
