package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrEmptyCode           = errors.New("no code provided")
)

// SnippetError is a fault raised by the submitted code itself.
type SnippetError struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	ImportFailure bool   `json:"import_error"`
}

func (e *SnippetError) Error() string {
	return e.Message
}

// ProcessError means the host interpreter could not run the snippet at all:
// it failed to start, was killed, or exited without leaving a report.
type ProcessError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsImportFailure reports whether err is a snippet fault in the import
// category, the only kind that is eligible for a dependency install.
func IsImportFailure(err error) bool {
	var se *SnippetError
	return errors.As(err, &se) && se.ImportFailure
}

// Message renders err the way it appears inside a result text.
func Message(err error) string {
	var se *SnippetError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
