// Package rerrors provides structured error classification for the
// inspection pipeline, grounded in the same code/message/cause/context
// shape used throughout the rest of the stack's error handling.
//
// A *StructuredError returned from the pipeline's top-level entry point is
// fatal (spec taxonomy §7): preflight failure, unreadable output directory,
// or a post-render push failure. The host OS is not checked against a list
// of supported releases, so no error is raised for it. Everything else —
// inspector-local I/O errors, baseline-unavailable, cross-major-version —
// is downgraded to a schema.Warning and never surfaces as an error.
package rerrors

import "fmt"

// Code classifies a StructuredError for programmatic handling and exit-code
// selection at the process boundary.
type Code string

const (
	CodePreflight  Code = "PREFLIGHT"
	CodeInspector  Code = "INSPECTOR"
	CodeBaseline   Code = "BASELINE"
	CodeRedaction  Code = "REDACTION"
	CodeRender     Code = "RENDER"
	CodePersist    Code = "PERSIST"
	CodePush       Code = "PUSH"
	CodeValidate   Code = "VALIDATE"
	CodeInvalidArg Code = "INVALID_ARGUMENT"
	CodeInternal   Code = "INTERNAL"
)

// StructuredError carries a classification code alongside a human message,
// an optional underlying cause, and free-form debugging context.
type StructuredError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a StructuredError with no underlying cause.
func New(code Code, message string) *StructuredError {
	return &StructuredError{Code: code, Message: message}
}

// Wrap creates a StructuredError around an existing error.
func Wrap(code Code, message string, cause error) *StructuredError {
	return &StructuredError{Code: code, Message: message, Cause: cause}
}

// WithContext attaches debugging context to a StructuredError and returns it
// for chaining at the call site.
func (e *StructuredError) WithContext(ctx map[string]any) *StructuredError {
	e.Context = ctx
	return e
}
