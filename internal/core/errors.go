package core

import (
	"errors"
	"fmt"
)

// Sentinel errors classified as terminal: retrying without new data cannot
// succeed.
var (
	ErrFirstContentNotFound  = errors.New("first content version not found")
	ErrSecondContentNotFound = errors.New("second content version not found")
	ErrBothContentNotFound   = errors.New("both content versions not found")
	ErrObjectNotFound        = errors.New("object not found")
	ErrCompetitorNotFound    = errors.New("competitor not found")
	ErrAnalyzerRefused       = errors.New("analyzer refused to categorize")
	ErrWorkflowNotFound      = errors.New("workflow instance not found")
)

// terminalError marks an error as non-retryable for the workflow engine.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

// NonRetryable wraps err so the workflow engine fails the step immediately
// instead of consuming its retry budget.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// NonRetryablef is NonRetryable over a formatted error.
func NonRetryablef(format string, args ...any) error {
	return &terminalError{err: fmt.Errorf(format, args...)}
}

// IsNonRetryable reports whether err (or anything it wraps) was marked
// terminal.
func IsNonRetryable(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
