package validator

import "fmt"

// ValidationError is the client-visible failure from any of the
// validator's three layers. Message is intentionally generic — no schema
// internals, path details, or command contents are leaked to the caller;
// the detailed reason travels only in Detail, which the caller
// (internal/security) records to the audit log.
type ValidationError struct {
	Pointer string // JSON-pointer-ish path to the offending field, e.g. "arguments.path"
	Message string
	// Detail carries the full, non-redacted diagnostic for the audit log.
	// It is never surfaced through Error().
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Pointer == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Pointer, e.Message)
}

func newValidationError(pointer, message, detail string) *ValidationError {
	return &ValidationError{Pointer: pointer, Message: message, Detail: detail}
}
