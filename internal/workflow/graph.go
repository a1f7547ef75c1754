package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
)

// Graph is the validated, immutable form of a Workflow. Edges are derived
// from artifact references: A depends on B iff A consumes an output of B.
type Graph struct {
	name   string
	params map[string]string

	specs []TaskSpec
	index map[string]int

	deps       map[string][]string
	dependents map[string][]string

	order []string
	rank  map[string]int

	externals     map[string]ExternalInput
	externalOrder []string

	producers map[ArtifactRef]OutputDecl
	consumers map[ArtifactRef][]string

	finalOutputs []ArtifactRef
	templates    map[string]*template.Template
}

// Build validates the declaration and derives the dependency graph.
// Failures are UnresolvedInput, InvalidDeclaration or CycleDetected errors.
func Build(wf *Workflow) (*Graph, error) {
	if wf == nil {
		return nil, wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "", "workflow is nil")
	}
	if strings.TrimSpace(wf.Name) == "" {
		return nil, wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "", "workflow name is required")
	}

	g := &Graph{
		name:       wf.Name,
		params:     make(map[string]string, len(wf.Params)),
		index:      make(map[string]int, len(wf.Tasks)),
		deps:       make(map[string][]string, len(wf.Tasks)),
		dependents: make(map[string][]string, len(wf.Tasks)),
		rank:       make(map[string]int, len(wf.Tasks)),
		externals:  make(map[string]ExternalInput, len(wf.Inputs)),
		producers:  make(map[ArtifactRef]OutputDecl),
		consumers:  make(map[ArtifactRef][]string),
		templates:  make(map[string]*template.Template, len(wf.Tasks)),
	}
	for k, v := range wf.Params {
		g.params[k] = v
	}

	if err := g.indexExternals(wf.Inputs); err != nil {
		return nil, err
	}
	if err := g.indexTasks(wf.Tasks); err != nil {
		return nil, err
	}
	if err := g.resolveInputs(); err != nil {
		return nil, err
	}
	if err := g.resolveFinalOutputs(wf.FinalOutputs); err != nil {
		return nil, err
	}
	if err := g.sort(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Graph) indexExternals(inputs []ExternalInput) error {
	for _, in := range inputs {
		if in.Name == "" {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "", "external input with empty name")
		}
		if _, dup := g.externals[in.Name]; dup {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "",
				fmt.Sprintf("duplicate external input '%s'", in.Name))
		}
		if in.Path == "" {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, "",
				fmt.Sprintf("external input '%s' has no path", in.Name))
		}
		if in.SizeBytes < 0 {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, "",
				fmt.Sprintf("external input '%s' has negative size", in.Name))
		}
		g.externals[in.Name] = in
		g.externalOrder = append(g.externalOrder, in.Name)
	}
	return nil
}

func (g *Graph) indexTasks(tasks []TaskSpec) error {
	g.specs = make([]TaskSpec, 0, len(tasks))

	for i := range tasks {
		spec := cloneSpec(tasks[i])
		if err := validateSpec(&spec); err != nil {
			return err
		}
		if _, dup := g.index[spec.Name]; dup {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, spec.Name,
				fmt.Sprintf("duplicate task name '%s'", spec.Name))
		}

		tmpl, err := parseCommand(spec.Name, spec.Command)
		if err != nil {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationTemplate, spec.Name,
				"command template does not parse").WithOriginalError(err)
		}
		if err := checkReferences(spec, g.params, tmpl); err != nil {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationTemplate, spec.Name,
				"command template references an undeclared name").WithOriginalError(err)
		}

		g.index[spec.Name] = len(g.specs)
		g.specs = append(g.specs, spec)
		g.templates[spec.Name] = tmpl

		for _, out := range spec.Outputs {
			g.producers[OutputOf(spec.Name, out.Name)] = out
		}
	}
	return nil
}

func validateSpec(spec *TaskSpec) error {
	if spec.Name == "" {
		return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "", "task with empty name")
	}
	if strings.ContainsAny(spec.Name, ". :/") {
		return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, spec.Name,
			"task names may not contain '.', ':', '/' or spaces")
	}
	if strings.TrimSpace(spec.Command) == "" {
		return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationTemplate, spec.Name, "command is empty")
	}
	if spec.MaxRetries < 0 {
		return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationPolicy, spec.Name, "max_retries must not be negative")
	}
	if spec.Timeout < 0 {
		return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationPolicy, spec.Name, "timeout must not be negative")
	}

	seen := make(map[string]bool, len(spec.Inputs))
	for _, in := range spec.Inputs {
		if in.Name == "" {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, spec.Name, "input with empty name")
		}
		if seen[in.Name] {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, spec.Name,
				fmt.Sprintf("duplicate input name '%s'", in.Name))
		}
		seen[in.Name] = true
	}

	seen = make(map[string]bool, len(spec.Outputs))
	for _, out := range spec.Outputs {
		if out.Name == "" || strings.Contains(out.Name, ".") {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, spec.Name,
				fmt.Sprintf("invalid output name '%s'", out.Name))
		}
		if seen[out.Name] {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, spec.Name,
				fmt.Sprintf("duplicate output name '%s'", out.Name))
		}
		seen[out.Name] = true

		if (out.Path == "") == (out.Glob == "") {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, spec.Name,
				fmt.Sprintf("output '%s' must set exactly one of path or glob", out.Name))
		}
		if filepath.IsAbs(out.Pattern()) {
			return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, spec.Name,
				fmt.Sprintf("output '%s' must be relative to the task work dir", out.Name))
		}
		if out.IsWildcard() {
			if _, err := filepath.Match(out.Glob, ""); err != nil {
				return wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationOutput, spec.Name,
					fmt.Sprintf("output '%s' has a malformed pattern", out.Name)).WithOriginalError(err)
			}
		}
	}
	return nil
}

func (g *Graph) resolveInputs() error {
	for _, spec := range g.specs {
		depSet := make(map[string]bool)

		for _, in := range spec.Inputs {
			if err := g.resolveRef(spec.Name, in.Name, in.Ref); err != nil {
				return err
			}
			if c := g.consumers[in.Ref]; len(c) == 0 || c[len(c)-1] != spec.Name {
				g.consumers[in.Ref] = append(c, spec.Name)
			}
			if !in.Ref.IsExternal() {
				depSet[in.Ref.Task] = true
			}
		}

		deps := make([]string, 0, len(depSet))
		for dep := range depSet {
			deps = append(deps, dep)
		}
		g.sortByDeclaration(deps)
		g.deps[spec.Name] = deps

		for _, dep := range deps {
			g.dependents[dep] = append(g.dependents[dep], spec.Name)
		}
	}
	return nil
}

func (g *Graph) resolveRef(task, input string, ref ArtifactRef) error {
	if ref.IsExternal() {
		if _, ok := g.externals[ref.Output]; !ok {
			return wferrors.NewUnresolvedInputError(wferrors.CodeGraphMissingInput, task, input, ref.String(),
				"no such external input")
		}
		return nil
	}
	if _, ok := g.index[ref.Task]; !ok {
		return wferrors.NewUnresolvedInputError(wferrors.CodeGraphUnknownTask, task, input, ref.String(),
			fmt.Sprintf("no task named '%s'", ref.Task))
	}
	if _, ok := g.producers[ref]; !ok {
		return wferrors.NewUnresolvedInputError(wferrors.CodeGraphUnknownOutput, task, input, ref.String(),
			fmt.Sprintf("task '%s' declares no output '%s'", ref.Task, ref.Output))
	}
	return nil
}

func (g *Graph) resolveFinalOutputs(refs []ArtifactRef) error {
	seen := make(map[ArtifactRef]bool, len(refs))
	for _, ref := range refs {
		if err := g.resolveRef("", "final_outputs", ref); err != nil {
			return err
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		g.finalOutputs = append(g.finalOutputs, ref)
	}
	return nil
}

// sort runs Kahn's algorithm. The queue is seeded and drained in
// declaration order, so the result is deterministic.
func (g *Graph) sort() error {
	inDegree := make(map[string]int, len(g.specs))
	var queue []string
	for _, spec := range g.specs {
		inDegree[spec.Name] = len(g.deps[spec.Name])
		if inDegree[spec.Name] == 0 {
			queue = append(queue, spec.Name)
		}
	}

	order := make([]string, 0, len(g.specs))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range g.dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.specs) {
		var remaining []string
		for _, spec := range g.specs {
			if inDegree[spec.Name] > 0 {
				remaining = append(remaining, spec.Name)
			}
		}
		return wferrors.NewCycleError(remaining)
	}

	g.order = order
	for i, name := range order {
		g.rank[name] = i
	}
	return nil
}

func (g *Graph) sortByDeclaration(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return g.index[names[i]] < g.index[names[j]]
	})
}

func cloneSpec(spec TaskSpec) TaskSpec {
	spec.Inputs = append([]Input(nil), spec.Inputs...)
	spec.Outputs = append([]OutputDecl(nil), spec.Outputs...)
	return spec
}

// Name returns the workflow name
func (g *Graph) Name() string {
	return g.name
}

// Size returns the number of tasks
func (g *Graph) Size() int {
	return len(g.specs)
}

// Spec returns a copy of the named task's declaration
func (g *Graph) Spec(name string) (TaskSpec, bool) {
	i, ok := g.index[name]
	if !ok {
		return TaskSpec{}, false
	}
	return cloneSpec(g.specs[i]), true
}

// Tasks returns task names in declaration order
func (g *Graph) Tasks() []string {
	names := make([]string, len(g.specs))
	for i, spec := range g.specs {
		names[i] = spec.Name
	}
	return names
}

// TopologicalOrder returns task names so that every producer precedes its consumers
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// Rank is the task's position in TopologicalOrder, or -1
func (g *Graph) Rank(name string) int {
	r, ok := g.rank[name]
	if !ok {
		return -1
	}
	return r
}

// DeclarationIndex is the task's position in the declaration, or -1
func (g *Graph) DeclarationIndex(name string) int {
	i, ok := g.index[name]
	if !ok {
		return -1
	}
	return i
}

// Dependencies returns the producers the task consumes from
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the tasks consuming any output of the task
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Descendants returns every transitive dependent in topological order
func (g *Graph) Descendants(name string) []string {
	seen := make(map[string]bool)
	stack := g.Dependents(name)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.dependents[n]...)
	}

	result := make([]string, 0, len(seen))
	for _, n := range g.order {
		if seen[n] {
			result = append(result, n)
		}
	}
	return result
}

// Externals returns the external inputs in declaration order
func (g *Graph) Externals() []ExternalInput {
	result := make([]ExternalInput, len(g.externalOrder))
	for i, name := range g.externalOrder {
		result[i] = g.externals[name]
	}
	return result
}

// External returns the named external input
func (g *Graph) External(name string) (ExternalInput, bool) {
	in, ok := g.externals[name]
	return in, ok
}

// Params returns a copy of the workflow parameters
func (g *Graph) Params() map[string]string {
	result := make(map[string]string, len(g.params))
	for k, v := range g.params {
		result[k] = v
	}
	return result
}

// FinalOutputs returns the artifacts named as the workflow result
func (g *Graph) FinalOutputs() []ArtifactRef {
	return append([]ArtifactRef(nil), g.finalOutputs...)
}

// IsFinal reports whether ref is one of the final outputs
func (g *Graph) IsFinal(ref ArtifactRef) bool {
	for _, f := range g.finalOutputs {
		if f == ref {
			return true
		}
	}
	return false
}

// Producer returns the output declaration behind a task output reference
func (g *Graph) Producer(ref ArtifactRef) (OutputDecl, bool) {
	decl, ok := g.producers[ref]
	return decl, ok
}

// Consumers returns the tasks that take ref as an input, in declaration order
func (g *Graph) Consumers(ref ArtifactRef) []string {
	return append([]string(nil), g.consumers[ref]...)
}

// String renders one "task <- deps" line per task in topological order
func (g *Graph) String() string {
	var b strings.Builder
	for _, name := range g.order {
		deps := g.deps[name]
		if len(deps) == 0 {
			fmt.Fprintf(&b, "%s\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s <- %s\n", name, strings.Join(deps, ", "))
	}
	return b.String()
}
