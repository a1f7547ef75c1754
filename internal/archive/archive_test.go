package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	"github.com/maxkimambo/xenopipe/internal/dag"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/resources"
)

func openArchive(t *testing.T) *Archive {
	a, err := Open(filepath.Join(t.TempDir(), "db", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchive_RunLifecycle(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	require.NoError(t, a.BeginRun(ctx, dag.RunInfo{
		RunID:     "run-1",
		Workflow:  "xenograft",
		Backend:   "local",
		RunDir:    "/runs/run-1",
		Tasks:     2,
		StartTime: start,
	}))

	end := start.Add(30 * time.Second)
	flagstat := &dag.RunResult{
		Task:       "flagstat",
		State:      dag.StateSucceeded,
		Success:    true,
		Attempts:   2,
		Allocation: resources.Allocation{CPU: 1, MemoryGB: 2, DiskGB: 11},
		Outputs: map[string][]artifact.Artifact{
			"report": {{Path: "/runs/run-1/flagstat/sample.flagstat", SizeBytes: 512}},
		},
		StartTime: &start,
		EndTime:   &end,
		Duration:  30 * time.Second,
	}
	require.NoError(t, a.RecordTask(ctx, "run-1", flagstat))

	header := &dag.RunResult{
		Task:         "extract_header",
		State:        dag.StateCancelled,
		ErrorKind:    wferrors.KindDependencyUnreachable,
		ErrorMessage: "upstream failed",
	}
	require.NoError(t, a.RecordTask(ctx, "run-1", header))

	require.NoError(t, a.FinishRun(ctx, &dag.ExecutionResult{
		RunID:    "run-1",
		Workflow: "xenograft",
		Success:  false,
		Results: map[string]*dag.RunResult{
			"flagstat":       flagstat,
			"extract_header": header,
		},
		FinalOutputs: map[string][]artifact.Artifact{
			"flagstat.report": flagstat.Outputs["report"],
		},
		Error: errors.New("task extract_header did not run"),
	}))

	run, err := a.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Cancelled)
	assert.Equal(t, 0, run.Failed)
	assert.True(t, run.EndTime.Valid)
	assert.Equal(t, "task extract_header did not run", run.Error.String)

	finals, err := run.DecodeFinalOutputs()
	require.NoError(t, err)
	assert.Equal(t, int64(512), finals["flagstat.report"][0].SizeBytes)

	require.Len(t, run.Tasks, 2)
	byName := map[string]TaskRecord{}
	for _, rec := range run.Tasks {
		byName[rec.Task] = rec
	}

	rec := byName["flagstat"]
	assert.Equal(t, "succeeded", rec.State)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, 30*time.Second, rec.Duration())
	alloc, err := rec.DecodeAllocation()
	require.NoError(t, err)
	assert.Equal(t, 11, alloc.DiskGB)
	outputs, err := rec.DecodeOutputs()
	require.NoError(t, err)
	assert.Equal(t, "/runs/run-1/flagstat/sample.flagstat", outputs["report"][0].Path)

	rec = byName["extract_header"]
	assert.Equal(t, "cancelled", rec.State)
	assert.Equal(t, string(wferrors.KindDependencyUnreachable), rec.ErrorKind)
	assert.False(t, rec.StartTime.Valid)
}

func TestArchive_RecordTaskReplaces(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	require.NoError(t, a.BeginRun(ctx, dag.RunInfo{RunID: "r", Workflow: "w", StartTime: time.Now()}))

	require.NoError(t, a.RecordTask(ctx, "r", &dag.RunResult{Task: "align", State: dag.StateFailedFinal, Attempts: 1}))
	require.NoError(t, a.RecordTask(ctx, "r", &dag.RunResult{Task: "align", State: dag.StateSucceeded, Attempts: 3}))

	run, err := a.GetRun(ctx, "r")
	require.NoError(t, err)
	require.Len(t, run.Tasks, 1)
	assert.Equal(t, "succeeded", run.Tasks[0].State)
	assert.Equal(t, 3, run.Tasks[0].Attempts)
}

func TestArchive_ListRunsNewestFirst(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "middle", "new"} {
		require.NoError(t, a.BeginRun(ctx, dag.RunInfo{
			RunID:     id,
			Workflow:  "xenograft",
			StartTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := a.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[2].RunID)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Equal(t, time.Duration(0), runs[0].Duration())

	runs, err = a.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestArchive_UnknownRun(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	_, err := a.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = a.FinishRun(ctx, &dag.ExecutionResult{RunID: "missing"})
	assert.ErrorIs(t, err, ErrRunNotFound)
}
