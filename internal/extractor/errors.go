package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLexicon is returned when a lexicon cannot be parsed or fails validation.
	ErrInvalidLexicon = errors.New("invalid clinical lexicon")

	// ErrUnknownCategory is returned when no extractor serves a document category.
	ErrUnknownCategory = errors.New("no extractor for document category")
)

// ExtractorError wraps errors with the operation that produced them.
type ExtractorError struct {
	Op      string
	Err     error
	Details string
}

func (e *ExtractorError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extractor: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extractor: %s failed: %v", e.Op, e.Err)
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

func (e *ExtractorError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractorError wraps an error as an ExtractorError if it isn't already one.
func WrapExtractorError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var exErr *ExtractorError
	if errors.As(err, &exErr) {
		return err
	}
	return &ExtractorError{Op: op, Err: err, Details: details}
}
