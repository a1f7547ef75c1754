package workflow

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const externalPrefix = "input:"

// ArtifactRef points at a file-like value: an output of a task, or an
// external input when Task is empty. Whether a task output is a single file
// or a wildcard-resolved set is decided by the producer's OutputDecl.
type ArtifactRef struct {
	Task   string
	Output string
}

// OutputOf references the named output of a task
func OutputOf(task, output string) ArtifactRef {
	return ArtifactRef{Task: task, Output: output}
}

// External references a workflow input supplied before execution
func External(name string) ArtifactRef {
	return ArtifactRef{Output: name}
}

// IsExternal reports whether the reference is a workflow input
func (r ArtifactRef) IsExternal() bool {
	return r.Task == ""
}

// String renders the reference as "task.output" or "input:name"
func (r ArtifactRef) String() string {
	if r.IsExternal() {
		return externalPrefix + r.Output
	}
	return r.Task + "." + r.Output
}

// ParseRef parses the form produced by String
func ParseRef(s string) (ArtifactRef, error) {
	if name, ok := strings.CutPrefix(s, externalPrefix); ok {
		if name == "" {
			return ArtifactRef{}, fmt.Errorf("empty external input name in %q", s)
		}
		return External(name), nil
	}

	task, output, ok := strings.Cut(s, ".")
	if !ok || task == "" || output == "" || strings.Contains(output, ".") {
		return ArtifactRef{}, fmt.Errorf("invalid artifact reference %q: want task.output or input:name", s)
	}
	return OutputOf(task, output), nil
}

func (r *ArtifactRef) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*r = parsed
	return nil
}

func (r ArtifactRef) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// Input binds a name used by the command template to an artifact
type Input struct {
	Name string      `yaml:"name"`
	Ref  ArtifactRef `yaml:"from"`
}

// OutputDecl declares a task output: either a fixed filename or a wildcard
// pattern resolved after execution, both relative to the task work dir.
type OutputDecl struct {
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"`
	Glob string `yaml:"glob,omitempty"`
}

// IsWildcard reports whether the output resolves to a variable-length set
func (o OutputDecl) IsWildcard() bool {
	return o.Glob != ""
}

// Pattern returns the fixed path or the wildcard pattern
func (o OutputDecl) Pattern() string {
	if o.IsWildcard() {
		return o.Glob
	}
	return o.Path
}

// DiskFormula sizes scratch disk as ceil(BaseGB + Multiplier * sum(input GB))
type DiskFormula struct {
	BaseGB     float64 `yaml:"base_gb"`
	Multiplier float64 `yaml:"multiplier"`
}

// ResourceProfile is the fixed part of a task's resource request
type ResourceProfile struct {
	CPU      int         `yaml:"cpu"`
	MemoryGB float64     `yaml:"memory_gb"`
	Disk     DiskFormula `yaml:"disk"`
	Image    string      `yaml:"image,omitempty"`
}

// TaskSpec is the static declaration of one unit of pipeline work
type TaskSpec struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Inputs      []Input         `yaml:"inputs,omitempty"`
	Outputs     []OutputDecl    `yaml:"outputs,omitempty"`
	Command     string          `yaml:"command"`
	Resources   ResourceProfile `yaml:"resources"`
	Preemptible bool            `yaml:"preemptible,omitempty"`
	MaxRetries  int             `yaml:"max_retries,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"`
}

// Output returns the output declaration with the given name
func (t *TaskSpec) Output(name string) (OutputDecl, bool) {
	for _, o := range t.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return OutputDecl{}, false
}

// ExternalInput is a file provided before execution with an externally known size
type ExternalInput struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	SizeBytes int64  `yaml:"size_bytes,omitempty"`
}

// Workflow is the declaration surface consumed once by Build
type Workflow struct {
	Name         string            `yaml:"name"`
	Params       map[string]string `yaml:"params,omitempty"`
	Inputs       []ExternalInput   `yaml:"inputs,omitempty"`
	Tasks        []TaskSpec        `yaml:"tasks"`
	FinalOutputs []ArtifactRef     `yaml:"final_outputs,omitempty"`
}
