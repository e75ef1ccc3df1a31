package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDependency is returned when a required stage is not provided.
	ErrMissingDependency = errors.New("missing pipeline dependency")

	// ErrRejected is returned when the document cannot enter the pipeline.
	ErrRejected = errors.New("document rejected")
)

// PipelineError wraps errors with the stage that produced them.
type PipelineError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pipeline: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("pipeline: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapPipelineError wraps an error as a PipelineError if it isn't already one.
func WrapPipelineError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return err
	}

	return &PipelineError{Op: op, Err: err, Details: details}
}
