package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/maxkimambo/xenopipe/internal/logger"
)

// dockerDaemonError is the exit status docker itself uses when it could not
// start the container
const dockerDaemonError = 125

// removeTimeout bounds the cleanup of a container whose attempt was abandoned
const removeTimeout = 30 * time.Second

// DockerConfig configures the docker backend
type DockerConfig struct {
	Binary           string
	ExtraArgs        []string
	PreemptExitCodes []int
	ExhaustExitCodes []int
}

// DefaultDockerConfig treats exit 137 (container OOM kill) as resource exhaustion
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Binary:           "docker",
		PreemptExitCodes: []int{143},
		ExhaustExitCodes: []int{137},
	}
}

// Docker runs each attempt in a container of the task's image with the
// allocation applied as cpu and memory limits. Host paths are mounted at
// the same location so rendered commands work unchanged.
type Docker struct {
	cfg DockerConfig
}

// NewDocker creates a docker backend
func NewDocker(cfg DockerConfig) *Docker {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	return &Docker{cfg: cfg}
}

func (d *Docker) Name() string {
	return "docker"
}

func (d *Docker) Run(ctx context.Context, inv *Invocation) (*Outcome, error) {
	if inv.Allocation.Image == "" {
		return nil, fmt.Errorf("task '%s' has no container image", inv.Task)
	}
	if err := PrepareWorkDir(inv); err != nil {
		return nil, err
	}
	stdoutPath, stderrPath := LogPaths(inv)

	args := d.args(inv)
	logger.Op.WithFields(map[string]interface{}{
		"task":    inv.Task,
		"attempt": inv.Attempt,
		"image":   inv.Allocation.Image,
	}).Debugf("docker %v", args)

	res, err := runProcess(ctx, inv.WorkDir, os.Environ(), stdoutPath, stderrPath, d.cfg.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			// killing the docker client leaves the container running
			d.remove(inv)
		}
		return nil, err
	}
	if res.exitCode == dockerDaemonError {
		return nil, fmt.Errorf("docker could not start the container, see %s", stderrPath)
	}

	out := &Outcome{
		ExitCode:   res.exitCode,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
	}
	classify(out, res, d.cfg.PreemptExitCodes, d.cfg.ExhaustExitCodes)

	if out.ExitCode == 0 {
		outputs, err := CollectOutputs(inv.Task, inv.WorkDir, inv.Outputs)
		if err != nil {
			return out, err
		}
		out.Outputs = outputs
	}
	return out, nil
}

// containerName is unique per run, task and attempt
func containerName(inv *Invocation) string {
	return fmt.Sprintf("xenopipe-%s-%s-%d", shortID(inv.RunID), inv.Task, inv.Attempt)
}

// remove force-removes the container of an attempt whose context is done
func (d *Docker) remove(inv *Invocation) {
	name := containerName(inv)
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, d.cfg.Binary, "rm", "-f", name).CombinedOutput()
	fields := map[string]interface{}{"task": inv.Task, "attempt": inv.Attempt, "container": name}
	if err != nil {
		logger.Op.WithFields(fields).Warnf("failed to remove container: %v: %s", err, out)
		return
	}
	logger.Op.WithFields(fields).Debug("removed container of cancelled attempt")
}

func (d *Docker) args(inv *Invocation) []string {
	args := []string{
		"run", "--rm",
		"--name", containerName(inv),
		"--cpus", fmt.Sprintf("%d", inv.Allocation.CPU),
		"--memory", fmt.Sprintf("%dg", inv.Allocation.MemoryGB),
		"-e", fmt.Sprintf("XENOPIPE_TASK=%s", inv.Task),
		"-e", fmt.Sprintf("XENOPIPE_ATTEMPT=%d", inv.Attempt),
		"-v", fmt.Sprintf("%s:%s", inv.WorkDir, inv.WorkDir),
	}
	for _, dir := range inputDirs(inv) {
		args = append(args, "-v", fmt.Sprintf("%s:%s:ro", dir, dir))
	}
	args = append(args, "-w", inv.WorkDir)
	args = append(args, d.cfg.ExtraArgs...)
	args = append(args, inv.Allocation.Image, "sh", "-c", inv.Command)
	return args
}

// inputDirs returns the distinct parent directories of all input paths,
// sorted, excluding the work dir itself
func inputDirs(inv *Invocation) []string {
	seen := map[string]bool{inv.WorkDir: true}
	var dirs []string
	for _, paths := range inv.Inputs {
		for _, p := range paths {
			dir := filepath.Dir(p)
			if seen[dir] {
				continue
			}
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
