package workflow

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// Bindings are the values a command template is rendered against.
// In holds the first path of each input, Inputs every path in order.
type Bindings struct {
	In       map[string]string
	Inputs   map[string][]string
	Out      map[string]string
	Params   map[string]string
	CPU      int
	MemoryGB int
	DiskGB   int
	WorkDir  string
}

var commandFuncs = template.FuncMap{
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"shq": shellQuote,
}

func parseCommand(name, command string) (*template.Template, error) {
	return template.New(name).
		Option("missingkey=error").
		Funcs(commandFuncs).
		Parse(command)
}

// checkReferences renders tmpl against placeholder bindings built from the
// task's declared names. Only unknown fields and keys are reported: path
// counts of wildcard inputs are not known until the producer has run.
func checkReferences(spec TaskSpec, params map[string]string, tmpl *template.Template) error {
	b := Bindings{
		In:       make(map[string]string, len(spec.Inputs)),
		Inputs:   make(map[string][]string, len(spec.Inputs)),
		Out:      make(map[string]string, len(spec.Outputs)),
		Params:   params,
		CPU:      1,
		MemoryGB: 1,
		DiskGB:   1,
		WorkDir:  "/work/" + spec.Name,
	}
	for _, in := range spec.Inputs {
		path := "/inputs/" + in.Name
		b.In[in.Name] = path
		b.Inputs[in.Name] = []string{path}
	}
	for _, out := range spec.Outputs {
		b.Out[out.Name] = b.WorkDir + "/" + out.Pattern()
	}

	err := tmpl.Execute(io.Discard, b)
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "map has no entry for key") || strings.Contains(msg, "can't evaluate field") {
		return err
	}
	return nil
}

// RenderCommand renders the task's command template
func (g *Graph) RenderCommand(task string, b Bindings) (string, error) {
	tmpl, ok := g.templates[task]
	if !ok {
		return "", fmt.Errorf("unknown task '%s'", task)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, b); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// shellQuote wraps s in single quotes for sh
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
