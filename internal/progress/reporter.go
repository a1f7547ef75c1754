package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProgressInfo contains a snapshot of a workflow run
type ProgressInfo struct {
	Workflow          string
	TotalTasks        int
	SucceededTasks    int
	FailedTasks       int
	CancelledTasks    int
	RunningTasks      []string
	RetryingTasks     []string
	PendingTasks      int
	ElapsedTime       time.Duration
	EstimatedTimeLeft time.Duration
}

// Finished is the number of tasks in a terminal state
func (p ProgressInfo) Finished() int {
	return p.SucceededTasks + p.FailedTasks + p.CancelledTasks
}

// Reporter formats periodic progress lines
type Reporter struct {
	reportInterval time.Duration
}

// NewReporter creates a new progress reporter
func NewReporter(interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{reportInterval: interval}
}

// Interval is how often the reporter expects to be asked for a report
func (r *Reporter) Interval() time.Duration {
	return r.reportInterval
}

// Report generates a formatted progress report
func (r *Reporter) Report(info ProgressInfo) string {
	var sb strings.Builder

	percentage := 0.0
	if info.TotalTasks > 0 {
		percentage = float64(info.Finished()) / float64(info.TotalTasks) * 100
	}

	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks finished (%.1f%%)",
		info.Finished(), info.TotalTasks, percentage))
	if info.Workflow != "" {
		sb.WriteString(fmt.Sprintf(" | Workflow: %s", info.Workflow))
	}
	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.ElapsedTime)))
	if info.EstimatedTimeLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedTimeLeft)))
	}

	if len(info.RunningTasks) > 0 {
		running := append([]string(nil), info.RunningTasks...)
		sort.Strings(running)
		sb.WriteString(fmt.Sprintf("\n   Running: %s", strings.Join(running, ", ")))
	}
	if len(info.RetryingTasks) > 0 {
		retrying := append([]string(nil), info.RetryingTasks...)
		sort.Strings(retrying)
		sb.WriteString(fmt.Sprintf("\n   Retrying: %s", strings.Join(retrying, ", ")))
	}
	if info.FailedTasks > 0 || info.CancelledTasks > 0 {
		sb.WriteString(fmt.Sprintf("\n   Failed: %d, cancelled: %d", info.FailedTasks, info.CancelledTasks))
	}
	if info.PendingTasks > 0 {
		sb.WriteString(fmt.Sprintf("\n   Waiting: %d", info.PendingTasks))
	}

	return sb.String()
}

// TaskSummary is the one-line outcome of a finished task
func TaskSummary(task string, attempts int, duration time.Duration, success bool) string {
	status := "COMPLETED"
	if !success {
		status = "FAILED"
	}
	suffix := ""
	if attempts > 1 {
		suffix = fmt.Sprintf(" after %d attempts", attempts)
	}
	return fmt.Sprintf("%s %s (took %s)%s", status, task, FormatDuration(duration), suffix)
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || total <= 0 || completed >= total {
		return 0
	}

	averageTimePerTask := elapsed / time.Duration(completed)
	remainingTasks := total - completed
	return averageTimePerTask * time.Duration(remainingTasks)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
