package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/resources"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// Invocation is everything a backend needs to run one attempt of a task
type Invocation struct {
	RunID      string
	Task       string
	Attempt    int
	Command    string
	Inputs     map[string][]string
	Outputs    []workflow.OutputDecl
	Allocation resources.Allocation
	WorkDir    string
	LogDir     string
}

// Outcome reports how an attempt ended. Outputs is only populated when
// ExitCode is zero.
type Outcome struct {
	ExitCode          int
	StdoutPath        string
	StderrPath        string
	Outputs           map[string][]artifact.Artifact
	Preempted         bool
	ResourceExhausted bool
}

// Backend executes rendered commands. Run blocks until the attempt ends or
// ctx is done; it must remove partial outputs of earlier attempts first.
type Backend interface {
	Name() string
	Run(ctx context.Context, inv *Invocation) (*Outcome, error)
}

// LogPaths returns where an attempt's stdout and stderr are captured
func LogPaths(inv *Invocation) (stdout, stderr string) {
	base := filepath.Join(inv.LogDir, fmt.Sprintf("%s.attempt%d", inv.Task, inv.Attempt))
	return base + ".stdout", base + ".stderr"
}

// PrepareWorkDir empties the task work dir and makes sure the log dir exists
func PrepareWorkDir(inv *Invocation) error {
	if inv.WorkDir == "" {
		return fmt.Errorf("task '%s' has no work dir", inv.Task)
	}
	if err := os.RemoveAll(inv.WorkDir); err != nil {
		return fmt.Errorf("failed to clean work dir: %w", err)
	}
	if err := os.MkdirAll(inv.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := os.MkdirAll(inv.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	return nil
}

// CollectOutputs resolves declared outputs under workDir. Wildcard sets are
// returned in lexical path order, which is the order consumers see.
func CollectOutputs(task, workDir string, decls []workflow.OutputDecl) (map[string][]artifact.Artifact, error) {
	outputs := make(map[string][]artifact.Artifact, len(decls))

	for _, decl := range decls {
		pattern := filepath.Join(workDir, decl.Pattern())

		if !decl.IsWildcard() {
			info, err := os.Stat(pattern)
			if err != nil || info.IsDir() {
				return nil, wferrors.NewMissingOutputError(task, decl.Name, pattern)
			}
			outputs[decl.Name] = []artifact.Artifact{{Path: pattern, SizeBytes: info.Size()}}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern for output '%s': %w", decl.Name, err)
		}
		arts := make([]artifact.Artifact, 0, len(matches))
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			arts = append(arts, artifact.Artifact{Path: m, SizeBytes: info.Size()})
		}
		outputs[decl.Name] = arts
	}
	return outputs, nil
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// New returns the backend registered under kind
func New(kind string, local LocalConfig, docker DockerConfig) (Backend, error) {
	switch kind {
	case "", "local":
		return NewLocal(local), nil
	case "docker":
		return NewDocker(docker), nil
	default:
		return nil, wferrors.NewConfigurationError("backend", fmt.Sprintf("unknown backend '%s'", kind))
	}
}
