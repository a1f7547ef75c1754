package dag

import "fmt"

// TaskState is the lifecycle state of a task instance
type TaskState int

const (
	// StatePending means at least one input is not yet recorded
	StatePending TaskState = iota
	// StateReady means every input is recorded and the task waits for a slot
	StateReady
	// StateRunning means an attempt is executing on the backend
	StateRunning
	// StateFailed means the last attempt failed and no decision was made yet
	StateFailed
	// StateRetrying means the task waits for its next attempt
	StateRetrying
	// StateSucceeded means outputs were recorded
	StateSucceeded
	// StateFailedFinal means the task will not be attempted again
	StateFailedFinal
	// StateCancelled means the task was never dispatched because a producer
	// failed or the run was cancelled. It is the terminal form of a Pending
	// (or Ready) task that never left waiting: no attempt was ever made.
	StateCancelled
)

var stateNames = map[TaskState]string{
	StatePending:     "pending",
	StateReady:       "ready",
	StateRunning:     "running",
	StateFailed:      "failed",
	StateRetrying:    "retrying",
	StateSucceeded:   "succeeded",
	StateFailedFinal: "failed_final",
	StateCancelled:   "cancelled",
}

// String returns a string representation of the TaskState
func (s TaskState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TaskState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown task state %q", text)
}

// IsTerminal reports whether no further transition can happen
func (s TaskState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailedFinal || s == StateCancelled
}

var transitions = map[TaskState][]TaskState{
	StatePending:  {StateReady, StateCancelled},
	StateReady:    {StateRunning, StateCancelled},
	StateRunning:  {StateSucceeded, StateFailed},
	StateFailed:   {StateRetrying, StateFailedFinal},
	StateRetrying: {StateRunning, StateFailedFinal},
}

// CanTransition reports whether from -> to is a legal lifecycle step
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
