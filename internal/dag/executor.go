package dag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	"github.com/maxkimambo/xenopipe/internal/backend"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/progress"
	"github.com/maxkimambo/xenopipe/internal/resources"
	"github.com/maxkimambo/xenopipe/internal/retry"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// ExecutorConfig contains configuration for the DAG executor
type ExecutorConfig struct {
	// MaxParallelTasks is the number of worker slots
	MaxParallelTasks int

	// TaskTimeout bounds each attempt of tasks that do not declare their own
	// timeout. Zero means no limit.
	TaskTimeout time.Duration

	// WorkDir is the root under which each run gets its own directory
	WorkDir string

	// CollectIntermediates removes a task's work dir once every consumer
	// has finished, unless it holds a final output
	CollectIntermediates bool

	// Retry is the wait policy between attempts of preemptible tasks
	Retry retry.Policy

	// ProgressInterval is how often progress is logged. Zero disables it.
	ProgressInterval time.Duration
}

// DefaultExecutorConfig returns a default configuration
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxParallelTasks: 4,
		WorkDir:          "runs",
		Retry:            retry.DefaultPolicy(),
		ProgressInterval: 30 * time.Second,
	}
}

// RunInfo describes a run when it starts
type RunInfo struct {
	RunID     string
	Workflow  string
	Backend   string
	RunDir    string
	Tasks     int
	StartTime time.Time
}

// Recorder persists run results as they become final
type Recorder interface {
	BeginRun(ctx context.Context, info RunInfo) error
	RecordTask(ctx context.Context, runID string, result *RunResult) error
	FinishRun(ctx context.Context, result *ExecutionResult) error
}

// StateObserver is notified of every state change. It may be called from
// several goroutines at once.
type StateObserver func(task string, from, to TaskState)

// ExecutionResult contains the results of a workflow run
type ExecutionResult struct {
	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
	RunDir   string `json:"run_dir"`

	// Success is true iff every task succeeded
	Success bool `json:"success"`

	Results map[string]*RunResult `json:"results"`

	// FinalOutputs maps each final output reference to its artifacts
	FinalOutputs map[string][]artifact.Artifact `json:"final_outputs"`

	ExecutionTime time.Duration `json:"execution_time"`

	// Error is the first FailedFinal error in topological order
	Error error `json:"-"`
}

// TasksIn returns the names of tasks that ended in state, sorted
func (r *ExecutionResult) TasksIn(state TaskState) []string {
	var names []string
	for name, res := range r.Results {
		if res.State == state {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type taskEvent struct {
	task     string
	attempts int
	outputs  map[string][]artifact.Artifact
	err      error
}

// Executor runs a workflow graph against a backend
type Executor struct {
	graph     *workflow.Graph
	backend   backend.Backend
	estimator *resources.Estimator
	config    *ExecutorConfig
	retry     *retry.Controller
	store     *artifact.Store
	slots     *semaphore.Weighted

	instances        map[string]*TaskInstance
	pendingConsumers map[string]int

	recorder  Recorder
	observers []StateObserver

	runID  string
	runDir string

	mutex     sync.RWMutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	finished  chan struct{}
}

// NewExecutor creates a new executor for one run of graph
func NewExecutor(graph *workflow.Graph, be backend.Backend, estimator *resources.Estimator, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxParallelTasks < 1 {
		config.MaxParallelTasks = 1
	}
	if estimator == nil {
		estimator = resources.NewEstimator(nil, 0)
	}

	e := &Executor{
		graph:            graph,
		backend:          be,
		estimator:        estimator,
		config:           config,
		retry:            retry.NewController(config.Retry),
		store:            artifact.NewStore(),
		slots:            semaphore.NewWeighted(int64(config.MaxParallelTasks)),
		instances:        make(map[string]*TaskInstance, graph.Size()),
		pendingConsumers: make(map[string]int, graph.Size()),
		finished:         make(chan struct{}),
	}
	for _, name := range graph.Tasks() {
		e.instances[name] = NewTaskInstance(name)
		e.pendingConsumers[name] = len(graph.Dependents(name))
	}
	e.retry.OnRetry(e.onRetry)
	e.SetRunID(uuid.NewString())
	return e
}

// SetRunID overrides the generated run id. It must be called before Execute.
func (e *Executor) SetRunID(id string) {
	e.runID = id
	root := e.config.WorkDir
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	e.runDir = filepath.Join(root, id)
}

// RunID returns the id of this run
func (e *Executor) RunID() string {
	return e.runID
}

// RunDir returns the directory holding task work dirs and logs
func (e *Executor) RunDir() string {
	return e.runDir
}

// SetRecorder installs a recorder for run results
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// AddObserver registers a state change observer
func (e *Executor) AddObserver(o StateObserver) {
	e.observers = append(e.observers, o)
}

// Store exposes the run's artifact store
func (e *Executor) Store() *artifact.Store {
	return e.store
}

// Instance returns the runtime state of a task
func (e *Executor) Instance(name string) (*TaskInstance, bool) {
	inst, ok := e.instances[name]
	return inst, ok
}

// Execute runs the workflow to completion. Task failures are reported in
// the result; the error is only set when the run could not start or ctx
// was cancelled.
func (e *Executor) Execute(ctx context.Context) (*ExecutionResult, error) {
	e.mutex.Lock()
	if e.started {
		e.mutex.Unlock()
		return nil, errors.New("executor has already been run")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.startTime = time.Now()
	e.mutex.Unlock()

	defer e.cancel()

	if e.backend == nil {
		return nil, wferrors.NewBackendError("", errors.New("no backend configured"))
	}
	if err := os.MkdirAll(e.runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}

	for _, in := range e.graph.Externals() {
		e.store.AddExternal(in.Name, artifact.Artifact{Path: in.Path, SizeBytes: in.SizeBytes})
	}

	if e.recorder != nil {
		info := RunInfo{
			RunID:     e.runID,
			Workflow:  e.graph.Name(),
			Backend:   e.backend.Name(),
			RunDir:    e.runDir,
			Tasks:     e.graph.Size(),
			StartTime: e.startTime,
		}
		if err := e.recorder.BeginRun(e.ctx, info); err != nil {
			logger.Op.Warnf("run archive unavailable: %v", err)
		}
	}

	logger.User.Startingf("Running workflow %s: %d tasks (max %d parallel, %s backend)",
		e.graph.Name(), e.graph.Size(), e.config.MaxParallelTasks, e.backend.Name())
	logger.Op.WithFields(map[string]interface{}{
		"run_id":  e.runID,
		"run_dir": e.runDir,
	}).Info("run started")

	go e.logProgress()

	e.schedule()

	close(e.finished)

	result := e.buildResult()
	e.logFinalProgress(result)

	if e.recorder != nil {
		if err := e.recorder.FinishRun(context.WithoutCancel(ctx), result); err != nil {
			logger.Op.Warnf("failed to archive run result: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run cancelled: %w", err)
	}
	return result, nil
}

// Cancel stops dispatching and cancels running attempts
func (e *Executor) Cancel() {
	e.mutex.RLock()
	cancel := e.cancel
	e.mutex.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// GetProgress returns the number of tasks in a terminal state
func (e *Executor) GetProgress() (finished, total int) {
	for _, inst := range e.instances {
		if inst.State().IsTerminal() {
			finished++
		}
	}
	return finished, len(e.instances)
}

// schedule is the dispatcher loop. It is the only goroutine that promotes,
// dispatches, completes or cancels tasks; workers report back on events.
func (e *Executor) schedule() {
	events := make(chan taskEvent, e.graph.Size())
	var ready []string
	running := 0

	for {
		if e.ctx.Err() == nil {
			ready = append(ready, e.promoteReady()...)
			e.sortReady(ready)

			for len(ready) > 0 {
				name := ready[0]
				if e.instances[name].State() != StateReady {
					ready = ready[1:]
					continue
				}
				if !e.slots.TryAcquire(1) {
					break
				}
				ready = ready[1:]
				e.setState(name, StateRunning)
				running++
				go e.runTask(name, events)
			}
		} else {
			ready = nil
			e.cancelRemaining(fmt.Errorf("run cancelled: %w", e.ctx.Err()))
		}

		if running == 0 {
			e.cancelRemaining(errors.New("task never became ready"))
			return
		}

		ev := <-events
		running--
		e.slots.Release(1)
		e.complete(ev)
	}
}

// promoteReady moves Pending tasks whose inputs are all recorded to Ready
func (e *Executor) promoteReady() []string {
	var promoted []string
	for _, name := range e.graph.Tasks() {
		if e.instances[name].State() != StatePending {
			continue
		}
		spec, _ := e.graph.Spec(name)
		if !e.inputsRecorded(spec) {
			continue
		}
		e.setState(name, StateReady)
		promoted = append(promoted, name)
	}
	return promoted
}

func (e *Executor) inputsRecorded(spec workflow.TaskSpec) bool {
	for _, in := range spec.Inputs {
		if !e.store.IsRecorded(in.Ref) {
			return false
		}
	}
	return true
}

// sortReady orders by topological rank, then declaration order
func (e *Executor) sortReady(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := e.graph.Rank(names[i]), e.graph.Rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return e.graph.DeclarationIndex(names[i]) < e.graph.DeclarationIndex(names[j])
	})
}

func (e *Executor) setState(name string, to TaskState) {
	inst := e.instances[name]
	from, err := inst.transition(to)
	if err != nil {
		logger.Op.WithFields(map[string]interface{}{"task": name}).Error(err.Error())
		return
	}

	logger.Op.WithFields(map[string]interface{}{
		"task": name,
		"from": from.String(),
		"to":   to.String(),
	}).Debug("state change")

	for _, o := range e.observers {
		o(name, from, to)
	}
}

func (e *Executor) onRetry(task string, attempt int, err error, wait time.Duration) {
	e.setState(task, StateRetrying)
	logger.User.Retryf("Task %s attempt %d failed (%s), retrying in %s",
		task, attempt, wferrors.DisplayErrorSummary(err), wait.Round(time.Millisecond))
}

// complete applies the final outcome reported by a worker
func (e *Executor) complete(ev taskEvent) {
	inst := e.instances[ev.task]
	inst.setAttempts(ev.attempts)

	if ev.err == nil {
		if err := e.store.Record(ev.task, ev.outputs); err != nil {
			ev.err = err
		}
	}

	if ev.err == nil {
		inst.setOutputs(ev.outputs)
		e.setState(ev.task, StateSucceeded)

		res := inst.Result()
		logger.User.Successf("Task completed: %s (%d attempt(s), %s)",
			ev.task, res.Attempts, progress.FormatDuration(res.Duration))
		logger.Op.Debug(progress.TaskSummary(ev.task, res.Attempts, res.Duration, true))
	} else {
		inst.setError(ev.err)
		if inst.State() == StateRunning {
			e.setState(ev.task, StateFailed)
		}
		e.setState(ev.task, StateFailedFinal)
		if err := e.store.Fail(ev.task, ev.err); err != nil {
			logger.Op.Warnf("store: %v", err)
		}

		logger.User.Errorf("Task failed: %s after %d attempt(s): %s",
			ev.task, inst.Attempts(), wferrors.DisplayErrorSummary(ev.err))
		logger.Op.Debug(progress.TaskSummary(ev.task, inst.Attempts(), inst.Result().Duration, false))
		e.cancelDependents(ev.task, ev.err)
	}

	e.record(ev.task)
	e.collect(ev.task)
}

// cancelDependents marks the transitive dependents of a failed task as
// Cancelled. None of them can have been dispatched.
func (e *Executor) cancelDependents(name string, cause error) {
	for _, d := range e.graph.Descendants(name) {
		inst := e.instances[d]
		if st := inst.State(); st != StatePending && st != StateReady {
			continue
		}

		depErr := wferrors.NewDependencyUnreachableError(d, name, cause)
		inst.setError(depErr)
		e.setState(d, StateCancelled)
		if err := e.store.Fail(d, depErr); err != nil {
			logger.Op.Warnf("store: %v", err)
		}

		logger.User.Skippedf("Skipping %s: upstream task %s failed", d, name)
		e.record(d)
		e.collect(d)
	}
}

// cancelRemaining cancels every task that has not started
func (e *Executor) cancelRemaining(cause error) {
	for _, name := range e.graph.TopologicalOrder() {
		inst := e.instances[name]
		if st := inst.State(); st != StatePending && st != StateReady {
			continue
		}
		inst.setError(cause)
		e.setState(name, StateCancelled)
		_ = e.store.Fail(name, cause)
		e.record(name)
	}
}

func (e *Executor) record(name string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordTask(context.WithoutCancel(e.ctx), e.runID, e.instances[name].Result()); err != nil {
		logger.Op.WithFields(map[string]interface{}{"task": name}).Warnf("failed to archive task result: %v", err)
	}
}

// collect releases the work dirs of producers whose consumers have all
// finished. Work dirs holding final outputs are kept.
func (e *Executor) collect(name string) {
	if !e.config.CollectIntermediates {
		return
	}

	for _, dep := range e.graph.Dependencies(name) {
		e.mutex.Lock()
		e.pendingConsumers[dep]--
		left := e.pendingConsumers[dep]
		e.mutex.Unlock()

		if left > 0 || e.instances[dep].State() != StateSucceeded || e.holdsFinalOutput(dep) {
			continue
		}

		dir := e.taskDir(dep)
		if err := os.RemoveAll(dir); err != nil {
			logger.Op.WithFields(map[string]interface{}{"task": dep}).Warnf("failed to remove work dir: %v", err)
			continue
		}
		e.instances[dep].markCollected()
		e.record(dep)
		logger.User.Cleanupf("Removed intermediate outputs of %s", dep)
	}
}

func (e *Executor) holdsFinalOutput(task string) bool {
	for _, ref := range e.graph.FinalOutputs() {
		if ref.Task == task {
			return true
		}
	}
	return false
}

func (e *Executor) taskDir(name string) string {
	return filepath.Join(e.runDir, name)
}

func (e *Executor) logDir() string {
	return filepath.Join(e.runDir, "logs")
}

// runTask resolves inputs and drives the attempts of one task. It runs on
// its own goroutine while holding a worker slot.
func (e *Executor) runTask(name string, events chan<- taskEvent) {
	ctx := e.ctx
	spec, _ := e.graph.Spec(name)
	inst := e.instances[name]

	inputs, sizes, err := e.resolveInputs(ctx, spec)
	if err != nil {
		events <- taskEvent{task: name, err: err}
		return
	}

	logger.User.Startingf("Starting task: %s", name)

	var (
		outputs   map[string][]artifact.Artifact
		prev      resources.Allocation
		exhausted bool
	)

	attempts, err := e.retry.Run(ctx, spec, func(ctx context.Context, n int) error {
		if n > 1 {
			e.setState(name, StateRunning)
		}

		alloc, err := e.allocate(spec, sizes, prev, exhausted)
		if err != nil {
			e.setState(name, StateFailed)
			return err
		}
		prev = alloc
		inst.beginAttempt(n, alloc)

		var out map[string][]artifact.Artifact
		out, exhausted, err = e.runAttempt(ctx, spec, n, inputs, alloc)
		if err != nil {
			e.setState(name, StateFailed)
			return err
		}
		outputs = out
		return nil
	})

	events <- taskEvent{task: name, attempts: attempts, outputs: outputs, err: err}
}

func (e *Executor) resolveInputs(ctx context.Context, spec workflow.TaskSpec) (map[string][]artifact.Artifact, []int64, error) {
	inputs := make(map[string][]artifact.Artifact, len(spec.Inputs))
	sizes := make([]int64, 0, len(spec.Inputs))

	for _, in := range spec.Inputs {
		arts, err := e.store.Resolve(ctx, in.Ref)
		if err != nil {
			return nil, nil, err
		}
		inputs[in.Name] = arts
		sizes = append(sizes, artifact.TotalSize(arts))
	}
	return inputs, sizes, nil
}

func (e *Executor) allocate(spec workflow.TaskSpec, sizes []int64, prev resources.Allocation, exhausted bool) (resources.Allocation, error) {
	if exhausted {
		return e.estimator.Reestimate(spec, sizes, prev)
	}
	return e.estimator.Estimate(spec, sizes)
}

func (e *Executor) attemptContext(ctx context.Context, spec workflow.TaskSpec) (context.Context, context.CancelFunc) {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.config.TaskTimeout
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// runAttempt renders the command, runs it and classifies the outcome.
// exhausted reports whether the next attempt should get a larger allocation.
func (e *Executor) runAttempt(ctx context.Context, spec workflow.TaskSpec, n int, inputs map[string][]artifact.Artifact, alloc resources.Allocation) (outputs map[string][]artifact.Artifact, exhausted bool, err error) {
	workDir := e.taskDir(spec.Name)
	bindings := e.bindings(spec, workDir, inputs, alloc)

	command, err := e.graph.RenderCommand(spec.Name, bindings)
	if err != nil {
		return nil, false, wferrors.NewRenderError(spec.Name, err)
	}

	inv := &backend.Invocation{
		RunID:      e.runID,
		Task:       spec.Name,
		Attempt:    n,
		Command:    command,
		Inputs:     bindings.Inputs,
		Outputs:    spec.Outputs,
		Allocation: alloc,
		WorkDir:    workDir,
		LogDir:     e.logDir(),
	}

	logger.Op.WithFields(map[string]interface{}{
		"task":    spec.Name,
		"attempt": n,
		"cpu":     alloc.CPU,
		"mem_gb":  alloc.MemoryGB,
		"disk_gb": alloc.DiskGB,
	}).Info("dispatching task")

	attemptCtx, cancel := e.attemptContext(ctx, spec)
	defer cancel()

	out, err := e.backend.Run(attemptCtx, inv)
	if out != nil {
		e.instances[spec.Name].setLogs(out.ExitCode, out.StdoutPath, out.StderrPath)
	}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, false, fmt.Errorf("run cancelled: %w", ctx.Err())
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			return nil, false, wferrors.NewTimeoutError(spec.Name, n, err)
		}
		if _, ok := wferrors.AsWorkflowError(err); ok {
			return nil, false, err
		}
		return nil, false, wferrors.NewBackendError(spec.Name, err)
	}

	switch {
	case out.Preempted:
		return nil, false, wferrors.NewPreemptedError(spec.Name, n)
	case out.ResourceExhausted:
		return nil, true, wferrors.NewResourceExhaustedError(spec.Name, n, out.ExitCode)
	case out.ExitCode != 0:
		return nil, false, wferrors.NewToolFailureError(spec.Name, out.ExitCode, out.StderrPath)
	}

	outputs, err = checkOutputs(spec, workDir, out.Outputs)
	return outputs, false, err
}

func (e *Executor) bindings(spec workflow.TaskSpec, workDir string, inputs map[string][]artifact.Artifact, alloc resources.Allocation) workflow.Bindings {
	b := workflow.Bindings{
		In:       make(map[string]string, len(inputs)),
		Inputs:   make(map[string][]string, len(inputs)),
		Out:      make(map[string]string, len(spec.Outputs)),
		Params:   e.graph.Params(),
		CPU:      alloc.CPU,
		MemoryGB: alloc.MemoryGB,
		DiskGB:   alloc.DiskGB,
		WorkDir:  workDir,
	}
	for name, arts := range inputs {
		paths := artifact.Paths(arts)
		b.Inputs[name] = paths
		if len(paths) > 0 {
			b.In[name] = paths[0]
		} else {
			b.In[name] = ""
		}
	}
	for _, out := range spec.Outputs {
		b.Out[out.Name] = filepath.Join(workDir, out.Pattern())
	}
	return b
}

// checkOutputs makes sure every declared output is present. Fixed outputs
// must resolve to exactly one artifact; wildcard sets may be empty.
func checkOutputs(spec workflow.TaskSpec, workDir string, got map[string][]artifact.Artifact) (map[string][]artifact.Artifact, error) {
	outputs := make(map[string][]artifact.Artifact, len(spec.Outputs))
	for _, decl := range spec.Outputs {
		arts := got[decl.Name]
		if !decl.IsWildcard() && len(arts) != 1 {
			return nil, wferrors.NewMissingOutputError(spec.Name, decl.Name, filepath.Join(workDir, decl.Path))
		}
		outputs[decl.Name] = arts
	}
	return outputs, nil
}

// logProgress provides periodic progress updates during execution
func (e *Executor) logProgress() {
	if e.config.ProgressInterval <= 0 {
		return
	}
	reporter := progress.NewReporter(e.config.ProgressInterval)
	ticker := time.NewTicker(reporter.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-e.finished:
			return
		case <-ticker.C:
			logger.User.Info(reporter.Report(e.buildProgressInfo()))
		}
	}
}

func (e *Executor) buildProgressInfo() progress.ProgressInfo {
	info := progress.ProgressInfo{
		Workflow:    e.graph.Name(),
		TotalTasks:  len(e.instances),
		ElapsedTime: time.Since(e.startTime),
	}

	for _, name := range e.graph.Tasks() {
		switch e.instances[name].State() {
		case StateSucceeded:
			info.SucceededTasks++
		case StateFailedFinal:
			info.FailedTasks++
		case StateCancelled:
			info.CancelledTasks++
		case StateRunning, StateFailed:
			info.RunningTasks = append(info.RunningTasks, name)
		case StateRetrying:
			info.RetryingTasks = append(info.RetryingTasks, name)
		default:
			info.PendingTasks++
		}
	}
	info.EstimatedTimeLeft = progress.CalculateETA(info.Finished(), info.TotalTasks, info.ElapsedTime)
	return info
}

// buildResult constructs the final execution result
func (e *Executor) buildResult() *ExecutionResult {
	result := &ExecutionResult{
		RunID:         e.runID,
		Workflow:      e.graph.Name(),
		RunDir:        e.runDir,
		Success:       true,
		Results:       make(map[string]*RunResult, len(e.instances)),
		FinalOutputs:  make(map[string][]artifact.Artifact),
		ExecutionTime: time.Since(e.startTime),
	}

	for _, name := range e.graph.TopologicalOrder() {
		res := e.instances[name].Result()
		result.Results[name] = res
		if res.Success {
			continue
		}
		result.Success = false
		if res.State == StateFailedFinal && result.Error == nil {
			result.Error = fmt.Errorf("task %s failed: %w", name, res.Error)
		}
	}
	if !result.Success && result.Error == nil {
		for _, name := range e.graph.TopologicalOrder() {
			if err := result.Results[name].Error; err != nil {
				result.Error = fmt.Errorf("task %s did not run: %w", name, err)
				break
			}
		}
	}

	for _, ref := range e.graph.FinalOutputs() {
		if arts, ok, err := e.store.Lookup(ref); ok && err == nil {
			result.FinalOutputs[ref.String()] = arts
		}
	}

	return result
}

// logFinalProgress logs the final execution summary
func (e *Executor) logFinalProgress(result *ExecutionResult) {
	succeeded := len(result.TasksIn(StateSucceeded))
	failed := len(result.TasksIn(StateFailedFinal))
	cancelled := len(result.TasksIn(StateCancelled))
	elapsed := progress.FormatDuration(result.ExecutionTime)

	if result.Success {
		logger.User.Successf("Workflow %s completed: %d/%d tasks successful in %s",
			e.graph.Name(), succeeded, len(result.Results), elapsed)
		return
	}
	logger.User.Errorf("Workflow %s failed: %d succeeded, %d failed, %d cancelled in %s",
		e.graph.Name(), succeeded, failed, cancelled, elapsed)
}
