package controlplane

import (
	"errors"
	"fmt"
)

// Sentinel errors for control plane operations. The texts are returned to
// HTTP clients verbatim.
var (
	ErrTaskNotFound   = errors.New("Task not found")
	ErrResultNotReady = errors.New("Result not ready")
	ErrAuditDisabled  = errors.New("audit trail is disabled")
)

// ValidationError rejects a submission before any task exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
