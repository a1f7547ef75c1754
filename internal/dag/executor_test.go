package dag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	"github.com/maxkimambo/xenopipe/internal/backend"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/resources"
	"github.com/maxkimambo/xenopipe/internal/retry"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// scriptedBackend writes declared outputs into the work dir, unless a
// per-task script decides the outcome of an attempt
type scriptedBackend struct {
	mutex       sync.Mutex
	scripts     map[string]func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error)
	invocations []backend.Invocation
	delay       time.Duration

	running    int32
	maxRunning int32
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		scripts: make(map[string]func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error)),
	}
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) on(task string, fn func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error)) {
	s.scripts[task] = fn
}

func (s *scriptedBackend) Run(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
	n := atomic.AddInt32(&s.running, 1)
	defer atomic.AddInt32(&s.running, -1)
	for {
		max := atomic.LoadInt32(&s.maxRunning)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxRunning, max, n) {
			break
		}
	}

	s.mutex.Lock()
	s.invocations = append(s.invocations, *inv)
	script := s.scripts[inv.Task]
	s.mutex.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := backend.PrepareWorkDir(inv); err != nil {
		return nil, err
	}
	if script != nil {
		return script(ctx, inv)
	}
	return writeOutputs(inv)
}

func (s *scriptedBackend) calls(task string) []backend.Invocation {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var result []backend.Invocation
	for _, inv := range s.invocations {
		if inv.Task == task {
			result = append(result, inv)
		}
	}
	return result
}

func (s *scriptedBackend) order() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var names []string
	for _, inv := range s.invocations {
		names = append(names, inv.Task)
	}
	return names
}

func writeOutputs(inv *backend.Invocation) (*backend.Outcome, error) {
	for _, decl := range inv.Outputs {
		if decl.IsWildcard() {
			continue
		}
		if err := os.WriteFile(filepath.Join(inv.WorkDir, decl.Path), []byte(inv.Task), 0o644); err != nil {
			return nil, err
		}
	}
	outputs, err := backend.CollectOutputs(inv.Task, inv.WorkDir, inv.Outputs)
	if err != nil {
		return nil, err
	}
	return &backend.Outcome{Outputs: outputs}, nil
}

func preempted(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
	return &backend.Outcome{ExitCode: 143, Preempted: true}, nil
}

// failFirst preempts the first n attempts, then succeeds
func failFirst(n int) func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
	return func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		if inv.Attempt <= n {
			return preempted(ctx, inv)
		}
		return writeOutputs(inv)
	}
}

func step(name string, inputs ...workflow.Input) workflow.TaskSpec {
	return workflow.TaskSpec{
		Name:      name,
		Command:   "run " + name,
		Inputs:    inputs,
		Outputs:   []workflow.OutputDecl{{Name: "out", Path: name + ".out"}},
		Resources: workflow.ResourceProfile{CPU: 1, MemoryGB: 2, Disk: workflow.DiskFormula{BaseGB: 1, Multiplier: 2}},
	}
}

func from(task string) workflow.Input {
	return workflow.Input{Name: "in", Ref: workflow.OutputOf(task, "out")}
}

func sample() workflow.Input {
	return workflow.Input{Name: "in", Ref: workflow.External("sample")}
}

func testConfig(t *testing.T) *ExecutorConfig {
	return &ExecutorConfig{
		MaxParallelTasks: 4,
		WorkDir:          t.TempDir(),
		Retry:            retry.NoWait(),
	}
}

func build(t *testing.T, b *workflow.Builder) *workflow.Graph {
	t.Helper()
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// chainGraph is A -> B -> C, plus D depending only on the sample
func chainGraph(t *testing.T, mutateB func(*workflow.TaskSpec)) *workflow.Graph {
	b := step("B", from("A"))
	if mutateB != nil {
		mutateB(&b)
	}
	return build(t, workflow.NewBuilder("chain").
		AddInput("sample", "/data/sample.bam", 4*resources.GiB).
		AddTask(step("A", sample())).
		AddTask(b).
		AddTask(step("C", from("B"))).
		AddTask(step("D", sample())).
		AddFinalOutput(workflow.OutputOf("C", "out")))
}

func TestDefaultExecutorConfig(t *testing.T) {
	config := DefaultExecutorConfig()

	assert.Equal(t, 4, config.MaxParallelTasks)
	assert.Equal(t, time.Duration(0), config.TaskTimeout)
	assert.Equal(t, "runs", config.WorkDir)
	assert.Equal(t, retry.DefaultPolicy(), config.Retry)
}

func TestExecute_LinearChainSucceeds(t *testing.T) {
	g := chainGraph(t, nil)
	be := newScriptedBackend()
	e := NewExecutor(g, be, nil, testConfig(t))

	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Success)
	assert.NoError(t, result.Error)
	for _, name := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, StateSucceeded, result.Results[name].State, name)
		assert.Equal(t, 1, result.Results[name].Attempts, name)
	}

	assert.True(t, e.Store().IsRecorded(workflow.OutputOf("C", "out")))
	final := result.FinalOutputs["C.out"]
	require.Len(t, final, 1)
	assert.Equal(t, filepath.Join(e.RunDir(), "C", "C.out"), final[0].Path)

	// disk for A: 1 + 2 * 4GiB
	assert.Equal(t, 9, be.calls("A")[0].Allocation.DiskGB)

	finished, total := e.GetProgress()
	assert.Equal(t, 4, finished)
	assert.Equal(t, 4, total)
}

func TestExecute_PreemptedTaskRecovers(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) {
		s.Preemptible = true
		s.MaxRetries = 2
	})
	be := newScriptedBackend()
	be.on("B", failFirst(2))
	e := NewExecutor(g, be, nil, testConfig(t))

	result, err := e.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, StateSucceeded, result.Results["B"].State)
	assert.Equal(t, 3, result.Results["B"].Attempts)
	assert.Len(t, be.calls("B"), 3)
	assert.Equal(t, StateSucceeded, result.Results["C"].State)

	inst, _ := e.Instance("B")
	assert.Equal(t, []TaskState{
		StatePending, StateReady,
		StateRunning, StateFailed, StateRetrying,
		StateRunning, StateFailed, StateRetrying,
		StateRunning, StateSucceeded,
	}, inst.History())
}

func TestExecute_RetryExhaustionCancelsDependentsOnly(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) {
		s.Preemptible = true
		s.MaxRetries = 1
	})
	be := newScriptedBackend()
	be.on("B", preempted)
	e := NewExecutor(g, be, nil, testConfig(t))

	result, err := e.Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StateFailedFinal, result.Results["B"].State)
	assert.Equal(t, 2, result.Results["B"].Attempts)
	assert.Equal(t, wferrors.KindTransient, result.Results["B"].ErrorKind)
	assert.ErrorIs(t, result.Error, wferrors.ErrTransient)

	assert.Equal(t, StateCancelled, result.Results["C"].State)
	assert.Equal(t, wferrors.KindDependencyUnreachable, result.Results["C"].ErrorKind)
	assert.Empty(t, be.calls("C"))

	assert.Equal(t, StateSucceeded, result.Results["A"].State)
	assert.Equal(t, StateSucceeded, result.Results["D"].State)

	assert.Equal(t, []string{"B"}, result.TasksIn(StateFailedFinal))
	assert.Equal(t, []string{"C"}, result.TasksIn(StateCancelled))
	assert.Empty(t, result.FinalOutputs)
}

func TestExecute_TransitiveCancellation(t *testing.T) {
	g := build(t, workflow.NewBuilder("deep").
		AddInput("sample", "/s", 1).
		AddTask(step("root", sample())).
		AddTask(step("mid", from("root"))).
		AddTask(step("leaf1", from("mid"))).
		AddTask(step("leaf2", from("leaf1"))).
		AddTask(step("side", sample())))

	be := newScriptedBackend()
	be.on("root", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		return &backend.Outcome{ExitCode: 1, StderrPath: "/logs/root.stderr"}, nil
	})

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateFailedFinal, result.Results["root"].State)
	assert.Equal(t, wferrors.KindTool, result.Results["root"].ErrorKind)
	for _, name := range []string{"mid", "leaf1", "leaf2"} {
		assert.Equal(t, StateCancelled, result.Results[name].State, name)
		assert.Equal(t, 0, result.Results[name].Attempts, name)
		assert.Nil(t, result.Results[name].StartTime, name)
		assert.Empty(t, be.calls(name), name)
	}
	assert.Equal(t, StateSucceeded, result.Results["side"].State)
}

func TestExecute_WildcardOutputsBindPositionally(t *testing.T) {
	split := workflow.TaskSpec{
		Name:      "bam_to_fastq",
		Command:   "split",
		Inputs:    []workflow.Input{sample()},
		Outputs:   []workflow.OutputDecl{{Name: "reads", Glob: "*.fastq"}},
		Resources: workflow.ResourceProfile{CPU: 1, MemoryGB: 1, Disk: workflow.DiskFormula{BaseGB: 1}},
	}
	align := workflow.TaskSpec{
		Name:      "align",
		Command:   "bwa mem ref.fa {{index .Inputs.reads 0}} {{index .Inputs.reads 1}} > {{.Out.out}}",
		Inputs:    []workflow.Input{{Name: "reads", Ref: workflow.OutputOf("bam_to_fastq", "reads")}},
		Outputs:   []workflow.OutputDecl{{Name: "out", Path: "aligned.sam"}},
		Resources: workflow.ResourceProfile{CPU: 1, MemoryGB: 1, Disk: workflow.DiskFormula{BaseGB: 1}},
	}
	g := build(t, workflow.NewBuilder("wild").
		AddInput("sample", "/s", 1).
		AddTask(split).
		AddTask(align))

	be := newScriptedBackend()
	be.on("bam_to_fastq", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		for _, name := range []string{"r_2.fastq", "r_1.fastq"} {
			if err := os.WriteFile(filepath.Join(inv.WorkDir, name), []byte("@read\n"), 0o644); err != nil {
				return nil, err
			}
		}
		return writeOutputs(inv)
	})

	e := NewExecutor(g, be, nil, testConfig(t))
	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	splitDir := filepath.Join(e.RunDir(), "bam_to_fastq")
	reads, err := e.Store().Resolve(context.Background(), workflow.OutputOf("bam_to_fastq", "reads"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(splitDir, "r_1.fastq"),
		filepath.Join(splitDir, "r_2.fastq"),
	}, artifact.Paths(reads))

	calls := be.calls("align")
	require.Len(t, calls, 1)
	assert.Equal(t,
		"bwa mem ref.fa "+filepath.Join(splitDir, "r_1.fastq")+" "+filepath.Join(splitDir, "r_2.fastq")+
			" > "+filepath.Join(e.RunDir(), "align", "aligned.sam"),
		calls[0].Command)
}

func TestExecute_NonPreemptibleTransientNotRetried(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) { s.MaxRetries = 3 })
	be := newScriptedBackend()
	be.on("B", preempted)

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailedFinal, result.Results["B"].State)
	assert.Len(t, be.calls("B"), 1)
}

func TestExecute_ToolFailureNotRetried(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) {
		s.Preemptible = true
		s.MaxRetries = 3
	})
	be := newScriptedBackend()
	be.on("B", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		return &backend.Outcome{ExitCode: 2}, nil
	})

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wferrors.KindTool, result.Results["B"].ErrorKind)
	assert.Equal(t, 2, result.Results["B"].ExitCode)
	assert.Len(t, be.calls("B"), 1)
}

func TestExecute_TimeoutIsRetriedLikePreemption(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) {
		s.Preemptible = true
		s.MaxRetries = 1
		s.Timeout = 20 * time.Millisecond
	})
	be := newScriptedBackend()
	be.on("B", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		if inv.Attempt == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return writeOutputs(inv)
	})

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Results["B"].Attempts)
}

func TestExecute_MissingFixedOutputIsToolFailure(t *testing.T) {
	g := chainGraph(t, nil)
	be := newScriptedBackend()
	be.on("A", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		return &backend.Outcome{}, nil
	})

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailedFinal, result.Results["A"].State)
	assert.Equal(t, "TOOL_FAILURE-"+wferrors.CodeToolOutputMissing, wferrors.GetErrorCode(result.Results["A"].Error))
	assert.Equal(t, StateCancelled, result.Results["B"].State)
	assert.Equal(t, StateCancelled, result.Results["C"].State)
}

func TestExecute_EstimationErrorFailsWithoutDispatch(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) { s.Resources.CPU = 0 })
	be := newScriptedBackend()

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wferrors.KindEstimation, result.Results["B"].ErrorKind)
	assert.Empty(t, be.calls("B"))
	assert.Equal(t, StateCancelled, result.Results["C"].State)
}

func TestExecute_ResourceExhaustionGrowsAllocation(t *testing.T) {
	g := chainGraph(t, func(s *workflow.TaskSpec) {
		s.Preemptible = true
		s.MaxRetries = 1
	})
	be := newScriptedBackend()
	be.on("B", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		if inv.Attempt == 1 {
			return &backend.Outcome{ExitCode: 137, ResourceExhausted: true}, nil
		}
		return writeOutputs(inv)
	})

	estimator := resources.NewEstimator(nil, 2)
	result, err := NewExecutor(g, be, estimator, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	calls := be.calls("B")
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[0].Allocation.MemoryGB)
	assert.Equal(t, 4, calls[1].Allocation.MemoryGB)
	assert.Equal(t, 2*calls[0].Allocation.DiskGB, calls[1].Allocation.DiskGB)
	assert.Equal(t, 4, result.Results["B"].Allocation.MemoryGB)
}

// A task is only ever promoted to Ready once all of its inputs are recorded.
func TestExecute_ReadyOnlyWhenInputsRecorded(t *testing.T) {
	g := build(t, workflow.NewBuilder("diamond").
		AddInput("sample", "/s", 1).
		AddTask(step("top", sample())).
		AddTask(step("left", from("top"))).
		AddTask(step("right", from("top"))).
		AddTask(step("bottom",
			workflow.Input{Name: "l", Ref: workflow.OutputOf("left", "out")},
			workflow.Input{Name: "r", Ref: workflow.OutputOf("right", "out")})))

	be := newScriptedBackend()
	be.delay = 5 * time.Millisecond
	e := NewExecutor(g, be, nil, testConfig(t))

	var violations []string
	var mutex sync.Mutex
	e.AddObserver(func(task string, from, to TaskState) {
		if to != StateReady {
			return
		}
		spec, _ := g.Spec(task)
		for _, in := range spec.Inputs {
			if !e.Store().IsRecorded(in.Ref) {
				mutex.Lock()
				violations = append(violations, task)
				mutex.Unlock()
			}
		}
	})

	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, violations)
}

func TestExecute_RespectsMaxParallelTasks(t *testing.T) {
	b := workflow.NewBuilder("wide").AddInput("sample", "/s", 1)
	for _, name := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		b.AddTask(step(name, sample()))
	}
	g := build(t, b)

	be := newScriptedBackend()
	be.delay = 20 * time.Millisecond
	config := testConfig(t)
	config.MaxParallelTasks = 2

	result, err := NewExecutor(g, be, nil, config).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.LessOrEqual(t, atomic.LoadInt32(&be.maxRunning), int32(2))
	assert.Len(t, be.order(), 6)
}

func TestExecute_DispatchFollowsTopologicalRank(t *testing.T) {
	g := build(t, workflow.NewBuilder("ranked").
		AddInput("sample", "/s", 1).
		AddTask(step("a", sample())).
		AddTask(step("late", from("a"))).
		AddTask(step("b", sample())).
		AddTask(step("c", sample())))

	be := newScriptedBackend()
	config := testConfig(t)
	config.MaxParallelTasks = 1

	_, err := NewExecutor(g, be, nil, config).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "late"}, be.order())
	assert.Equal(t, g.TopologicalOrder(), be.order())
}

func TestExecute_CollectIntermediates(t *testing.T) {
	g := chainGraph(t, nil)
	be := newScriptedBackend()
	config := testConfig(t)
	config.CollectIntermediates = true
	e := NewExecutor(g, be, nil, config)

	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.NoDirExists(t, filepath.Join(e.RunDir(), "A"))
	assert.NoDirExists(t, filepath.Join(e.RunDir(), "B"))
	assert.FileExists(t, filepath.Join(e.RunDir(), "C", "C.out"))
	assert.FileExists(t, filepath.Join(e.RunDir(), "D", "D.out"))
	assert.True(t, result.Results["A"].Collected)
	assert.False(t, result.Results["C"].Collected)
}

// lastResultRecorder keeps the most recent archived result per task
type lastResultRecorder struct {
	mu      sync.Mutex
	results map[string]RunResult
}

func (r *lastResultRecorder) BeginRun(ctx context.Context, info RunInfo) error { return nil }

func (r *lastResultRecorder) RecordTask(ctx context.Context, runID string, result *RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]RunResult)
	}
	r.results[result.Task] = *result
	return nil
}

func (r *lastResultRecorder) FinishRun(ctx context.Context, result *ExecutionResult) error { return nil }

func TestExecute_CollectedFlagIsArchived(t *testing.T) {
	g := chainGraph(t, nil)
	config := testConfig(t)
	config.CollectIntermediates = true
	e := NewExecutor(g, newScriptedBackend(), nil, config)
	rec := &lastResultRecorder{}
	e.SetRecorder(rec)

	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, name := range []string{"A", "B", "C", "D"} {
		require.Contains(t, rec.results, name)
		assert.Equal(t, result.Results[name].Collected, rec.results[name].Collected, name)
	}
	assert.True(t, rec.results["A"].Collected)
	assert.True(t, rec.results["B"].Collected)
	assert.False(t, rec.results["C"].Collected)
}

func TestExecute_ContextCancellation(t *testing.T) {
	g := chainGraph(t, nil)
	be := newScriptedBackend()
	started := make(chan struct{})
	var once sync.Once
	be.on("A", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	config := testConfig(t)
	config.MaxParallelTasks = 1
	result, err := NewExecutor(g, be, nil, config).Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	assert.Equal(t, StateFailedFinal, result.Results["A"].State)
	for _, name := range []string{"B", "C", "D"} {
		assert.Equal(t, StateCancelled, result.Results[name].State, name)
	}
}

func TestExecute_OnlyOnce(t *testing.T) {
	g := chainGraph(t, nil)
	e := NewExecutor(g, newScriptedBackend(), nil, testConfig(t))

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	_, err = e.Execute(context.Background())
	assert.Error(t, err)
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string {
	return m.Called().String(0)
}

func (m *mockBackend) Run(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
	args := m.Called(ctx, inv)
	out, _ := args.Get(0).(*backend.Outcome)
	return out, args.Error(1)
}

func TestExecute_BackendErrorIsNotRetried(t *testing.T) {
	g := build(t, workflow.NewBuilder("single").
		AddInput("sample", "/s", 1).
		AddTask(func() workflow.TaskSpec {
			s := step("only", sample())
			s.Preemptible = true
			s.MaxRetries = 3
			return s
		}()))

	be := &mockBackend{}
	be.On("Name").Return("mock")
	be.On("Run", mock.Anything, mock.MatchedBy(func(inv *backend.Invocation) bool {
		return inv.Task == "only" && inv.Command == "run only"
	})).Return(nil, errors.New("daemon unreachable")).Once()

	result, err := NewExecutor(g, be, nil, testConfig(t)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wferrors.KindBackend, result.Results["only"].ErrorKind)
	assert.Equal(t, 1, result.Results["only"].Attempts)
	be.AssertExpectations(t)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) BeginRun(ctx context.Context, info RunInfo) error {
	return m.Called(ctx, info).Error(0)
}

func (m *mockRecorder) RecordTask(ctx context.Context, runID string, result *RunResult) error {
	return m.Called(ctx, runID, result).Error(0)
}

func (m *mockRecorder) FinishRun(ctx context.Context, result *ExecutionResult) error {
	return m.Called(ctx, result).Error(0)
}

func TestExecute_RecordsEveryTask(t *testing.T) {
	g := chainGraph(t, nil)
	be := newScriptedBackend()
	be.on("B", func(ctx context.Context, inv *backend.Invocation) (*backend.Outcome, error) {
		return &backend.Outcome{ExitCode: 1}, nil
	})

	e := NewExecutor(g, be, nil, testConfig(t))
	e.SetRunID("run-42")

	rec := &mockRecorder{}
	rec.On("BeginRun", mock.Anything, mock.MatchedBy(func(info RunInfo) bool {
		return info.RunID == "run-42" && info.Workflow == "chain" && info.Tasks == 4 && info.Backend == "scripted"
	})).Return(nil).Once()
	rec.On("RecordTask", mock.Anything, "run-42", mock.AnythingOfType("*dag.RunResult")).Return(nil).Times(4)
	rec.On("FinishRun", mock.Anything, mock.MatchedBy(func(r *ExecutionResult) bool {
		return r.RunID == "run-42" && !r.Success
	})).Return(errors.New("disk full")).Once()
	e.SetRecorder(rec)

	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "run-42", e.RunID())
	rec.AssertExpectations(t)
}
