package workflow

// Builder assembles a Workflow in code and validates it with Build
type Builder struct {
	wf Workflow
}

// NewBuilder creates a Builder for a workflow with the given name
func NewBuilder(name string) *Builder {
	return &Builder{wf: Workflow{Name: name, Params: make(map[string]string)}}
}

// AddInput declares an external input
func (b *Builder) AddInput(name, path string, sizeBytes int64) *Builder {
	b.wf.Inputs = append(b.wf.Inputs, ExternalInput{Name: name, Path: path, SizeBytes: sizeBytes})
	return b
}

// AddTask appends a task declaration
func (b *Builder) AddTask(spec TaskSpec) *Builder {
	b.wf.Tasks = append(b.wf.Tasks, spec)
	return b
}

// SetParam sets a string parameter visible to command templates
func (b *Builder) SetParam(key, value string) *Builder {
	b.wf.Params[key] = value
	return b
}

// AddFinalOutput names an artifact as part of the workflow result
func (b *Builder) AddFinalOutput(ref ArtifactRef) *Builder {
	b.wf.FinalOutputs = append(b.wf.FinalOutputs, ref)
	return b
}

// Workflow returns the declaration assembled so far
func (b *Builder) Workflow() *Workflow {
	wf := b.wf
	return &wf
}

// Build validates the declaration and returns the graph
func (b *Builder) Build() (*Graph, error) {
	return Build(b.Workflow())
}
