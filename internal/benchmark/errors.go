package benchmark

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference is returned when a reference file cannot be parsed or fails validation.
	ErrInvalidReference = errors.New("invalid reference dataset")

	// ErrUnsupportedUnit is returned when a value cannot be converted into the dataset unit.
	ErrUnsupportedUnit = errors.New("unsupported unit")
)

// BenchmarkError wraps errors with the operation that produced them.
type BenchmarkError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *BenchmarkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("benchmark: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("benchmark: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BenchmarkError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *BenchmarkError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapBenchmarkError wraps an error as a BenchmarkError if it isn't already one.
func WrapBenchmarkError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var bErr *BenchmarkError
	if errors.As(err, &bErr) {
		return err
	}

	return &BenchmarkError{Op: op, Err: err, Details: details}
}
