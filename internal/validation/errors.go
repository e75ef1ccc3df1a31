package validation

import (
	"errors"
	"fmt"
)

var (
	// ErrAnalysisFailed is returned when a text analyzer request fails.
	ErrAnalysisFailed = errors.New("text analysis failed")

	// ErrEmptyResponse is returned when the analyzer returned no usable content.
	ErrEmptyResponse = errors.New("analyzer returned an empty response")

	// ErrInvalidResponse is returned when the analyzer response cannot be parsed.
	ErrInvalidResponse = errors.New("analyzer returned an invalid response")
)

// ValidationError wraps errors with the operation that produced them.
type ValidationError struct {
	Op      string
	Err     error
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("validation: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("validation: %s failed: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapValidationError wraps an error as a ValidationError if it isn't already one.
func WrapValidationError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	return &ValidationError{Op: op, Err: err, Details: details}
}
