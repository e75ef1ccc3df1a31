package normalizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRuleTable is returned when a rule table cannot be parsed or fails validation.
	ErrInvalidRuleTable = errors.New("invalid parameter rule table")

	// ErrInvalidPattern is returned when a synonym cannot be compiled into a pattern.
	ErrInvalidPattern = errors.New("invalid recognition pattern")
)

// NormalizerError wraps errors with the operation that produced them.
type NormalizerError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *NormalizerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("normalizer: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("normalizer: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *NormalizerError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *NormalizerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapNormalizerError wraps an error as a NormalizerError if it isn't already one.
func WrapNormalizerError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var nErr *NormalizerError
	if errors.As(err, &nErr) {
		return err
	}

	return &NormalizerError{Op: op, Err: err, Details: details}
}
