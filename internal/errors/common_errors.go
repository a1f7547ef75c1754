package errors

import (
	"fmt"
	"strings"
)

// Common error codes
const (
	// Graph build error codes
	CodeGraphCycle          = "001"
	CodeGraphUnknownTask    = "002"
	CodeGraphUnknownOutput  = "003"
	CodeGraphMissingInput   = "004"
	CodeDeclarationName     = "001"
	CodeDeclarationOutput   = "002"
	CodeDeclarationTemplate = "003"
	CodeDeclarationPolicy   = "004"

	// Runtime error codes
	CodeEstimationInvalid  = "001"
	CodeEstimationImage    = "002"
	CodeTransientPreempted = "001"
	CodeTransientTimeout   = "002"
	CodeTransientExhausted = "003"
	CodeToolExit           = "001"
	CodeToolOutputMissing  = "002"
	CodeToolRender         = "003"
	CodeDependencyFailed   = "001"
	CodeBackendUnavailable = "001"

	// Configuration error codes
	CodeConfigValue = "001"
	CodeConfigFile  = "002"
)

// NewCycleError creates an error naming the tasks left on a cycle
func NewCycleError(tasks []string) *WorkflowError {
	return NewWorkflowError(KindCycleDetected, CodeGraphCycle,
		fmt.Sprintf("dependency cycle among tasks: %s", strings.Join(tasks, ", ")), "").
		WithContext("tasks", tasks).
		WithTroubleshooting(
			"Check that no task consumes an output of one of its own dependents",
			"Run 'xenopipe validate' to print the dependency edges",
		)
}

// NewUnresolvedInputError creates an error for an input with no producer
func NewUnresolvedInputError(code, task, input, ref, reason string) *WorkflowError {
	return NewWorkflowError(KindUnresolvedInput, code,
		fmt.Sprintf("input '%s' references %s: %s", input, ref, reason), task).
		WithContext("input", input).
		WithContext("ref", ref).
		WithTroubleshooting(
			"Verify the referenced task and output names are spelled correctly",
			"External inputs must be declared in the workflow inputs section",
		)
}

// NewInvalidDeclarationError creates an error for a malformed task declaration
func NewInvalidDeclarationError(code, task, message string) *WorkflowError {
	return NewWorkflowError(KindInvalidDeclaration, code, message, task)
}

// NewEstimationError creates an error for an invalid resource allocation
func NewEstimationError(code, task, message string) *WorkflowError {
	return NewWorkflowError(KindEstimation, code, message, task).
		WithTroubleshooting(
			"Check the task's cpu, memory_gb and disk formula",
			"Check the image minimum requirements in the configuration",
		)
}

// NewPreemptedError marks an attempt whose execution environment was reclaimed
func NewPreemptedError(task string, attempt int) *WorkflowError {
	return NewWorkflowError(KindTransient, CodeTransientPreempted,
		fmt.Sprintf("attempt %d was preempted", attempt), task).
		WithContext("attempt", attempt)
}

// NewTimeoutError marks an attempt that exceeded its wall-clock timeout
func NewTimeoutError(task string, attempt int, originalErr error) *WorkflowError {
	return NewWorkflowError(KindTransient, CodeTransientTimeout,
		fmt.Sprintf("attempt %d timed out", attempt), task).
		WithContext("attempt", attempt).
		WithOriginalError(originalErr)
}

// NewResourceExhaustedError marks an attempt killed for exceeding its allocation
func NewResourceExhaustedError(task string, attempt, exitCode int) *WorkflowError {
	return NewWorkflowError(KindTransient, CodeTransientExhausted,
		fmt.Sprintf("attempt %d exhausted its resource allocation (exit %d)", attempt, exitCode), task).
		WithContext("attempt", attempt).
		WithContext("exit_code", exitCode)
}

// NewToolFailureError creates an error for a non-zero tool exit
func NewToolFailureError(task string, exitCode int, stderrPath string) *WorkflowError {
	return NewWorkflowError(KindTool, CodeToolExit,
		fmt.Sprintf("command exited with status %d", exitCode), task).
		WithContext("exit_code", exitCode).
		WithContext("stderr", stderrPath).
		WithTroubleshooting(
			fmt.Sprintf("Inspect the captured stderr at %s", stderrPath),
			"Re-run the rendered command by hand inside the task work directory",
		)
}

// NewMissingOutputError creates an error for a declared fixed output that was not produced
func NewMissingOutputError(task, output, path string) *WorkflowError {
	return NewWorkflowError(KindTool, CodeToolOutputMissing,
		fmt.Sprintf("declared output '%s' was not produced at %s", output, path), task).
		WithContext("output", output).
		WithContext("path", path)
}

// NewRenderError creates an error for a command template that failed to render
func NewRenderError(task string, originalErr error) *WorkflowError {
	return NewWorkflowError(KindTool, CodeToolRender, "failed to render command", task).
		WithOriginalError(originalErr)
}

// NewDependencyUnreachableError marks a task whose producer reached FailedFinal
func NewDependencyUnreachableError(task, producer string, cause error) *WorkflowError {
	return NewWorkflowError(KindDependencyUnreachable, CodeDependencyFailed,
		fmt.Sprintf("producer '%s' failed", producer), task).
		WithContext("producer", producer).
		WithOriginalError(cause)
}

// NewBackendError creates an error for a backend that could not run an attempt
func NewBackendError(task string, originalErr error) *WorkflowError {
	return NewWorkflowError(KindBackend, CodeBackendUnavailable, "execution backend failed", task).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check that the configured backend binary is installed and on PATH",
			"For the docker backend, check that the daemon is reachable",
		)
}

// NewConfigurationError creates an error for an invalid configuration value
func NewConfigurationError(field, message string) *WorkflowError {
	return NewWorkflowError(KindConfiguration, CodeConfigValue,
		fmt.Sprintf("invalid value for %s: %s", field, message), "").
		WithContext("field", field)
}

// NewConfigFileError creates an error for a config file that could not be read
func NewConfigFileError(path string, originalErr error) *WorkflowError {
	return NewWorkflowError(KindConfiguration, CodeConfigFile,
		fmt.Sprintf("failed to load config file %s", path), "").
		WithContext("path", path).
		WithOriginalError(originalErr).
		WithTroubleshooting("Check that the file exists and is valid YAML")
}

// GetErrorSeverity returns the severity level of an error
func GetErrorSeverity(err error) string {
	switch KindOf(err) {
	case KindTransient:
		return "WARNING"
	case KindCycleDetected, KindUnresolvedInput, KindInvalidDeclaration, KindConfiguration:
		return "CRITICAL"
	default:
		return "ERROR"
	}
}
