package dag

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/resources"
)

// TaskInstance is the runtime state of one task within a run
type TaskInstance struct {
	name string

	state      TaskState
	attempts   int
	allocation resources.Allocation
	outputs    map[string][]artifact.Artifact
	exitCode   int
	stdoutPath string
	stderrPath string
	err        error
	collected  bool
	startTime  *time.Time
	endTime    *time.Time
	history    []TaskState

	mutex sync.RWMutex
}

// NewTaskInstance creates a pending instance
func NewTaskInstance(name string) *TaskInstance {
	return &TaskInstance{
		name:    name,
		state:   StatePending,
		history: []TaskState{StatePending},
	}
}

// Name returns the task name
func (t *TaskInstance) Name() string {
	return t.name
}

// State returns the current lifecycle state
func (t *TaskInstance) State() TaskState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}

// History returns every state the instance passed through
func (t *TaskInstance) History() []TaskState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return append([]TaskState(nil), t.history...)
}

// transition moves to the given state, rejecting illegal steps
func (t *TaskInstance) transition(to TaskState) (TaskState, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	from := t.state
	if !CanTransition(from, to) {
		return from, fmt.Errorf("task '%s': illegal transition %s -> %s", t.name, from, to)
	}
	t.state = to
	t.history = append(t.history, to)

	now := time.Now()
	if to == StateRunning && t.startTime == nil {
		t.startTime = &now
	}
	if to.IsTerminal() {
		t.endTime = &now
	}
	return from, nil
}

func (t *TaskInstance) beginAttempt(n int, alloc resources.Allocation) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.attempts = n
	t.allocation = alloc
}

func (t *TaskInstance) setLogs(exitCode int, stdout, stderr string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.exitCode = exitCode
	t.stdoutPath = stdout
	t.stderrPath = stderr
}

func (t *TaskInstance) setOutputs(outputs map[string][]artifact.Artifact) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.outputs = outputs
}

func (t *TaskInstance) setError(err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.err = err
}

func (t *TaskInstance) setAttempts(n int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if n > t.attempts {
		t.attempts = n
	}
}

func (t *TaskInstance) markCollected() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.collected = true
}

// Attempts is the number of attempts started so far
func (t *TaskInstance) Attempts() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.attempts
}

// Err returns the error that ended the task, if any
func (t *TaskInstance) Err() error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.err
}

// Result snapshots the instance as a RunResult
func (t *TaskInstance) Result() *RunResult {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	r := &RunResult{
		Task:       t.name,
		State:      t.state,
		Success:    t.state == StateSucceeded,
		Attempts:   t.attempts,
		Allocation: t.allocation,
		ExitCode:   t.exitCode,
		StdoutPath: t.stdoutPath,
		StderrPath: t.stderrPath,
		Collected:  t.collected,
		Error:      t.err,
		StartTime:  t.startTime,
		EndTime:    t.endTime,
	}
	if t.err != nil {
		r.ErrorKind = wferrors.KindOf(t.err)
		r.ErrorMessage = t.err.Error()
	}
	if t.outputs != nil {
		r.Outputs = make(map[string][]artifact.Artifact, len(t.outputs))
		for k, v := range t.outputs {
			r.Outputs[k] = append([]artifact.Artifact(nil), v...)
		}
	}
	if t.startTime != nil && t.endTime != nil {
		r.Duration = t.endTime.Sub(*t.startTime)
	}
	return r
}

// RunResult is the record of a task once its state is final
type RunResult struct {
	Task         string                         `json:"task"`
	State        TaskState                      `json:"state"`
	Success      bool                           `json:"success"`
	Attempts     int                            `json:"attempts"`
	Allocation   resources.Allocation           `json:"allocation"`
	Outputs      map[string][]artifact.Artifact `json:"outputs,omitempty"`
	ExitCode     int                            `json:"exit_code"`
	StdoutPath   string                         `json:"stdout,omitempty"`
	StderrPath   string                         `json:"stderr,omitempty"`
	Collected    bool                           `json:"collected,omitempty"`
	ErrorKind    wferrors.ErrorKind             `json:"error_kind,omitempty"`
	ErrorMessage string                         `json:"error,omitempty"`
	Error        error                          `json:"-"`
	StartTime    *time.Time                     `json:"start_time,omitempty"`
	EndTime      *time.Time                     `json:"end_time,omitempty"`
	Duration     time.Duration                  `json:"duration"`
}
