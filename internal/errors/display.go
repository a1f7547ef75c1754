package errors

import (
	"fmt"
	"sort"
	"strings"
)

// DisplayError formats an error for user-friendly display
func DisplayError(err error) string {
	if wfErr, ok := AsWorkflowError(err); ok {
		return wfErr.Error()
	}

	return fmt.Sprintf("Error: %v", err)
}

// DisplayErrorSummary provides a brief summary of the error for logs
func DisplayErrorSummary(err error) string {
	if wfErr, ok := AsWorkflowError(err); ok {
		return fmt.Sprintf("%s-%s: %s", wfErr.Kind, wfErr.Code, wfErr.Message)
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// ShouldDisplayTroubleshooting determines if troubleshooting info should be shown
func ShouldDisplayTroubleshooting(err error) bool {
	if wfErr, ok := AsWorkflowError(err); ok {
		return len(wfErr.Troubleshooting) > 0
	}
	return false
}

// FormatForCLI formats an error for command-line display with proper spacing
func FormatForCLI(err error) string {
	wfErr, ok := AsWorkflowError(err)
	if !ok {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\nError [%s-%s]\n", wfErr.Kind, wfErr.Code))
	sb.WriteString(fmt.Sprintf("  %s\n", wfErr.Message))

	if wfErr.Task != "" {
		sb.WriteString(fmt.Sprintf("\nTask: %s\n", wfErr.Task))
	}

	if len(wfErr.Context) > 0 {
		keys := make([]string, 0, len(wfErr.Context))
		for key := range wfErr.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, key := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", key, wfErr.Context[key]))
		}
	}

	if len(wfErr.Troubleshooting) > 0 {
		sb.WriteString("\nHow to resolve:\n")
		for i, step := range wfErr.Troubleshooting {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if wfErr.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", wfErr.OriginalError))
	}

	return sb.String()
}

// IsUserError determines if an error is due to the workflow declaration or configuration
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindCycleDetected, KindUnresolvedInput, KindInvalidDeclaration, KindConfiguration:
		return true
	}
	return false
}

// GetErrorCode extracts the error code for reporting
func GetErrorCode(err error) string {
	if wfErr, ok := AsWorkflowError(err); ok {
		return fmt.Sprintf("%s-%s", wfErr.Kind, wfErr.Code)
	}
	return "UNKNOWN"
}
