package dag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// RunVisualization renders a finished (or running) workflow run
type RunVisualization struct {
	graph  *workflow.Graph
	result *ExecutionResult
}

// NewRunVisualization creates a new visualization helper. result may be nil
// to render the plan only.
func NewRunVisualization(graph *workflow.Graph, result *ExecutionResult) *RunVisualization {
	return &RunVisualization{
		graph:  graph,
		result: result,
	}
}

// NodeInfo contains information about a task for visualization
type NodeInfo struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Status      TaskState  `json:"status"`
	Attempts    int        `json:"attempts"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EdgeInfo contains information about an edge for visualization
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RunInfoView contains the full graph structure and run state
type RunInfoView struct {
	RunID    string     `json:"runId,omitempty"`
	Workflow string     `json:"workflow"`
	Nodes    []NodeInfo `json:"nodes"`
	Edges    []EdgeInfo `json:"edges"`
	Stats    RunStats   `json:"stats"`
}

// RunStats contains statistics about the run
type RunStats struct {
	TotalNodes     int        `json:"totalNodes"`
	SucceededNodes int        `json:"succeededNodes"`
	FailedNodes    int        `json:"failedNodes"`
	CancelledNodes int        `json:"cancelledNodes"`
	PendingNodes   int        `json:"pendingNodes"`
	Retries        int        `json:"retries"`
	TotalDuration  string     `json:"totalDuration,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
}

// Generate builds the view in topological order
func (v *RunVisualization) Generate() *RunInfoView {
	order := v.graph.TopologicalOrder()
	view := &RunInfoView{
		Workflow: v.graph.Name(),
		Nodes:    make([]NodeInfo, 0, len(order)),
		Edges:    []EdgeInfo{},
		Stats:    RunStats{TotalNodes: len(order)},
	}
	if v.result != nil {
		view.RunID = v.result.RunID
	}

	var earliestStart, latestEnd *time.Time

	for _, id := range order {
		spec, _ := v.graph.Spec(id)
		node := NodeInfo{ID: id, Description: spec.Description, Status: StatePending}

		if v.result != nil {
			if res, ok := v.result.Results[id]; ok {
				node.Status = res.State
				node.Attempts = res.Attempts
				node.StartTime = res.StartTime
				node.EndTime = res.EndTime
				if res.StartTime != nil && res.EndTime != nil {
					node.Duration = res.Duration.Round(time.Millisecond).String()
				}
				node.Error = res.ErrorMessage
			}
		}

		if node.StartTime != nil && (earliestStart == nil || node.StartTime.Before(*earliestStart)) {
			earliestStart = node.StartTime
		}
		if node.EndTime != nil && (latestEnd == nil || node.EndTime.After(*latestEnd)) {
			latestEnd = node.EndTime
		}
		if node.Attempts > 1 {
			view.Stats.Retries += node.Attempts - 1
		}

		switch node.Status {
		case StateSucceeded:
			view.Stats.SucceededNodes++
		case StateFailedFinal:
			view.Stats.FailedNodes++
		case StateCancelled:
			view.Stats.CancelledNodes++
		default:
			view.Stats.PendingNodes++
		}

		view.Nodes = append(view.Nodes, node)

		for _, dep := range v.graph.Dependencies(id) {
			view.Edges = append(view.Edges, EdgeInfo{From: dep, To: id})
		}
	}

	if earliestStart != nil {
		view.Stats.StartTime = earliestStart
		if latestEnd != nil {
			view.Stats.EndTime = latestEnd
			view.Stats.TotalDuration = latestEnd.Sub(*earliestStart).Round(time.Millisecond).String()
		}
	}
	return view
}

// ExportToJSON writes the view as indented JSON
func (v *RunVisualization) ExportToJSON(filename string) error {
	data, err := json.MarshalIndent(v.Generate(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

var stateColors = map[TaskState]string{
	StatePending:     "lightgrey",
	StateReady:       "lightgrey",
	StateRunning:     "lightblue",
	StateRetrying:    "lightblue",
	StateFailed:      "salmon",
	StateSucceeded:   "lightgreen",
	StateFailedFinal: "salmon",
	StateCancelled:   "orange",
}

// GenerateDOTGraph creates a DOT format graph for Graphviz
func (v *RunVisualization) GenerateDOTGraph() string {
	view := v.Generate()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("digraph %q {\n", view.Workflow))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n\n")

	for _, node := range view.Nodes {
		label := node.ID
		if node.Attempts > 1 {
			label += fmt.Sprintf("\\n%d attempts", node.Attempts)
		}
		if node.Duration != "" {
			label += fmt.Sprintf("\\n%s", node.Duration)
		}
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=\"%s\"];\n",
			node.ID, label, stateColors[node.Status]))
	}

	sb.WriteString("\n")
	for _, edge := range view.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}
	sb.WriteString("}\n")

	return sb.String()
}

// ExportToDOT writes the DOT graph to a file
func (v *RunVisualization) ExportToDOT(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateDOTGraph()), 0644)
}

// GenerateTextSummary creates a human-readable summary of the run
func (v *RunVisualization) GenerateTextSummary() string {
	view := v.Generate()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Workflow %s ===\n", view.Workflow))
	if view.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: %s\n", view.RunID))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  Total Tasks: %d\n", view.Stats.TotalNodes))
	sb.WriteString(fmt.Sprintf("  Succeeded: %d\n", view.Stats.SucceededNodes))
	sb.WriteString(fmt.Sprintf("  Failed: %d\n", view.Stats.FailedNodes))
	sb.WriteString(fmt.Sprintf("  Cancelled: %d\n", view.Stats.CancelledNodes))
	if view.Stats.PendingNodes > 0 {
		sb.WriteString(fmt.Sprintf("  Not Run: %d\n", view.Stats.PendingNodes))
	}
	if view.Stats.Retries > 0 {
		sb.WriteString(fmt.Sprintf("  Retries: %d\n", view.Stats.Retries))
	}
	if view.Stats.TotalDuration != "" {
		sb.WriteString(fmt.Sprintf("  Total Duration: %s\n", view.Stats.TotalDuration))
	}
	sb.WriteString("\n")

	for _, node := range view.Nodes {
		sb.WriteString(fmt.Sprintf("  %-20s %-13s", node.ID, node.Status))
		if node.Attempts > 0 {
			sb.WriteString(fmt.Sprintf(" attempts=%d", node.Attempts))
		}
		if node.Duration != "" {
			sb.WriteString(fmt.Sprintf(" %s", node.Duration))
		}
		if node.Error != "" {
			sb.WriteString(fmt.Sprintf("\n      %s", node.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ExportToText writes the summary to a file
func (v *RunVisualization) ExportToText(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateTextSummary()), 0644)
}
