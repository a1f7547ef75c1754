package dag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

func vizGraph(t *testing.T) *workflow.Graph {
	return build(t, workflow.NewBuilder("viz").
		AddInput("sample", "/s", 1).
		AddTask(step("A", sample())).
		AddTask(step("B", from("A"))).
		AddTask(step("C", from("B"))))
}

func vizResult() *ExecutionResult {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	mid := start.Add(2 * time.Second)
	end := start.Add(5 * time.Second)

	return &ExecutionResult{
		RunID:    "run-1",
		Workflow: "viz",
		Results: map[string]*RunResult{
			"A": {Task: "A", State: StateSucceeded, Success: true, Attempts: 1, StartTime: &start, EndTime: &mid, Duration: 2 * time.Second},
			"B": {Task: "B", State: StateFailedFinal, Attempts: 3, StartTime: &mid, EndTime: &end, Duration: 3 * time.Second,
				ErrorKind: wferrors.KindTransient, ErrorMessage: "attempt 3 was preempted"},
			"C": {Task: "C", State: StateCancelled, EndTime: &end, ErrorKind: wferrors.KindDependencyUnreachable, ErrorMessage: "upstream B failed"},
		},
	}
}

func TestRunVisualization_PlanOnly(t *testing.T) {
	view := NewRunVisualization(vizGraph(t), nil).Generate()

	assert.Equal(t, "viz", view.Workflow)
	assert.Empty(t, view.RunID)
	require.Len(t, view.Nodes, 3)
	for _, n := range view.Nodes {
		assert.Equal(t, StatePending, n.Status)
	}
	assert.Equal(t, 3, view.Stats.PendingNodes)
	assert.Equal(t, []EdgeInfo{{From: "A", To: "B"}, {From: "B", To: "C"}}, view.Edges)
}

func TestRunVisualization_Stats(t *testing.T) {
	view := NewRunVisualization(vizGraph(t), vizResult()).Generate()

	assert.Equal(t, "run-1", view.RunID)
	assert.Equal(t, 3, view.Stats.TotalNodes)
	assert.Equal(t, 1, view.Stats.SucceededNodes)
	assert.Equal(t, 1, view.Stats.FailedNodes)
	assert.Equal(t, 1, view.Stats.CancelledNodes)
	assert.Equal(t, 0, view.Stats.PendingNodes)
	assert.Equal(t, 2, view.Stats.Retries)
	assert.Equal(t, "5s", view.Stats.TotalDuration)
	assert.Equal(t, "3s", view.Nodes[1].Duration)
	assert.Empty(t, view.Nodes[2].Duration)
}

func TestRunVisualization_DOT(t *testing.T) {
	dot := NewRunVisualization(vizGraph(t), vizResult()).GenerateDOTGraph()

	assert.True(t, strings.HasPrefix(dot, `digraph "viz" {`))
	assert.Contains(t, dot, `"A" -> "B";`)
	assert.Contains(t, dot, `"B" -> "C";`)
	assert.Contains(t, dot, `fillcolor="lightgreen"`)
	assert.Contains(t, dot, `fillcolor="orange"`)
	assert.Contains(t, dot, `3 attempts`)
}

func TestRunVisualization_TextSummary(t *testing.T) {
	text := NewRunVisualization(vizGraph(t), vizResult()).GenerateTextSummary()

	assert.Contains(t, text, "=== Workflow viz ===")
	assert.Contains(t, text, "Run: run-1")
	assert.Contains(t, text, "Succeeded: 1")
	assert.Contains(t, text, "Failed: 1")
	assert.Contains(t, text, "Cancelled: 1")
	assert.Contains(t, text, "Retries: 2")
	assert.Contains(t, text, "upstream B failed")
	assert.NotContains(t, text, "Not Run")
}

func TestRunVisualization_Export(t *testing.T) {
	viz := NewRunVisualization(vizGraph(t), vizResult())
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "run.json")
	require.NoError(t, viz.ExportToJSON(jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var view RunInfoView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "run-1", view.RunID)
	assert.Equal(t, StateFailedFinal, view.Nodes[1].Status)

	dotPath := filepath.Join(dir, "run.dot")
	require.NoError(t, viz.ExportToDOT(dotPath))
	assert.FileExists(t, dotPath)

	txtPath := filepath.Join(dir, "run.txt")
	require.NoError(t, viz.ExportToText(txtPath))
	assert.FileExists(t, txtPath)
}
