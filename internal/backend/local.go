package backend

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/maxkimambo/xenopipe/internal/logger"
)

// LocalConfig configures how exit statuses are classified
type LocalConfig struct {
	Shell string
	// PreemptExitCodes mark an attempt as preempted rather than failed
	PreemptExitCodes []int
	// ExhaustExitCodes mark an attempt as killed for exceeding its allocation
	ExhaustExitCodes []int
}

// DefaultLocalConfig treats SIGTERM-style exits as preemption and
// SIGKILL-style exits as resource exhaustion
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Shell:            "sh",
		PreemptExitCodes: []int{143},
		ExhaustExitCodes: []int{137},
	}
}

// Local runs commands with sh -c on this machine. Allocations are exported
// to the command as environment variables but not enforced.
type Local struct {
	cfg LocalConfig
}

// NewLocal creates a local backend
func NewLocal(cfg LocalConfig) *Local {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	return &Local{cfg: cfg}
}

func (l *Local) Name() string {
	return "local"
}

func (l *Local) Run(ctx context.Context, inv *Invocation) (*Outcome, error) {
	if err := PrepareWorkDir(inv); err != nil {
		return nil, err
	}
	stdoutPath, stderrPath := LogPaths(inv)

	logger.Op.WithFields(map[string]interface{}{
		"task":    inv.Task,
		"attempt": inv.Attempt,
		"workdir": inv.WorkDir,
	}).Debugf("exec: %s", inv.Command)

	res, err := runProcess(ctx, inv.WorkDir, l.env(inv), stdoutPath, stderrPath, l.cfg.Shell, "-c", inv.Command)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		ExitCode:   res.exitCode,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
	}
	classify(out, res, l.cfg.PreemptExitCodes, l.cfg.ExhaustExitCodes)

	if out.ExitCode == 0 {
		outputs, err := CollectOutputs(inv.Task, inv.WorkDir, inv.Outputs)
		if err != nil {
			return out, err
		}
		out.Outputs = outputs
	}
	return out, nil
}

func (l *Local) env(inv *Invocation) []string {
	return append(os.Environ(),
		fmt.Sprintf("XENOPIPE_TASK=%s", inv.Task),
		fmt.Sprintf("XENOPIPE_ATTEMPT=%d", inv.Attempt),
		fmt.Sprintf("XENOPIPE_RUN_ID=%s", inv.RunID),
		fmt.Sprintf("XENOPIPE_CPU=%d", inv.Allocation.CPU),
		fmt.Sprintf("XENOPIPE_MEMORY_GB=%d", inv.Allocation.MemoryGB),
		fmt.Sprintf("XENOPIPE_DISK_GB=%d", inv.Allocation.DiskGB),
	)
}

// classify sets the preempted and exhaustion flags from the exit status.
// A process killed by SIGTERM reports as preempted, SIGKILL as exhausted.
func classify(out *Outcome, res *processResult, preempt, exhaust []int) {
	switch res.signal {
	case syscall.SIGTERM:
		out.Preempted = true
		out.ExitCode = 128 + int(res.signal)
		return
	case syscall.SIGKILL:
		out.ResourceExhausted = true
		out.ExitCode = 128 + int(res.signal)
		return
	}

	if containsCode(preempt, out.ExitCode) {
		out.Preempted = true
	} else if containsCode(exhaust, out.ExitCode) {
		out.ResourceExhausted = true
	}
}
