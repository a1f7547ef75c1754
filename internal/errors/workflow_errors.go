package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a workflow failure
type ErrorKind string

const (
	// KindCycleDetected is raised at graph-build time when the task graph has a cycle
	KindCycleDetected ErrorKind = "CYCLE_DETECTED"
	// KindUnresolvedInput is raised when a consumed artifact has no producer
	KindUnresolvedInput ErrorKind = "UNRESOLVED_INPUT"
	// KindInvalidDeclaration covers malformed task declarations
	KindInvalidDeclaration ErrorKind = "INVALID_DECLARATION"
	// KindEstimation is raised when a resource allocation cannot be computed
	KindEstimation ErrorKind = "ESTIMATION_ERROR"
	// KindTransient marks preemption, resource exhaustion and timeouts
	KindTransient ErrorKind = "TRANSIENT_FAILURE"
	// KindTool marks a non-zero tool exit not classified as transient
	KindTool ErrorKind = "TOOL_FAILURE"
	// KindDependencyUnreachable marks tasks whose producer failed
	KindDependencyUnreachable ErrorKind = "DEPENDENCY_UNREACHABLE"
	// KindConfiguration represents configuration errors
	KindConfiguration ErrorKind = "CONFIGURATION"
	// KindBackend represents failures of the execution backend itself
	KindBackend ErrorKind = "BACKEND"
)

// Sentinels for errors.Is comparisons. They match any WorkflowError of the same kind.
var (
	ErrCycleDetected         = &WorkflowError{Kind: KindCycleDetected}
	ErrUnresolvedInput       = &WorkflowError{Kind: KindUnresolvedInput}
	ErrInvalidDeclaration    = &WorkflowError{Kind: KindInvalidDeclaration}
	ErrEstimation            = &WorkflowError{Kind: KindEstimation}
	ErrTransient             = &WorkflowError{Kind: KindTransient}
	ErrTool                  = &WorkflowError{Kind: KindTool}
	ErrDependencyUnreachable = &WorkflowError{Kind: KindDependencyUnreachable}
	ErrConfiguration         = &WorkflowError{Kind: KindConfiguration}
	ErrBackend               = &WorkflowError{Kind: KindBackend}
)

// WorkflowError represents a structured error with context and troubleshooting information
type WorkflowError struct {
	Kind            ErrorKind
	Code            string
	Message         string
	Task            string
	Context         map[string]interface{}
	Troubleshooting []string
	OriginalError   error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Kind, e.Code, e.Message))
	if e.Task != "" {
		sb.WriteString(fmt.Sprintf(" (task %s)", e.Task))
	}
	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *WorkflowError) Unwrap() error {
	return e.OriginalError
}

// Is reports whether target is a WorkflowError of the same kind.
// A target carrying a code only matches errors with that code.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewWorkflowError creates a new workflow error with the specified parameters
func NewWorkflowError(kind ErrorKind, code, message, task string) *WorkflowError {
	return &WorkflowError{
		Kind:            kind,
		Code:            code,
		Message:         message,
		Task:            task,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithContext adds context information to the error
func (e *WorkflowError) WithContext(key string, value interface{}) *WorkflowError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *WorkflowError) WithTroubleshooting(steps ...string) *WorkflowError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error to the workflow error
func (e *WorkflowError) WithOriginalError(err error) *WorkflowError {
	e.OriginalError = err
	return e
}

// KindOf returns the kind of the first WorkflowError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var wfErr *WorkflowError
	if stderrors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient failure
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// AsWorkflowError extracts the WorkflowError from err's chain
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var wfErr *WorkflowError
	ok := stderrors.As(err, &wfErr)
	return wfErr, ok
}
