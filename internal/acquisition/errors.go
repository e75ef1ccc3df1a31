package acquisition

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMediaType is the only hard failure of the chain.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrNoTextLayer is returned when a PDF has no usable embedded text.
	ErrNoTextLayer = errors.New("PDF has no usable text layer")

	// ErrOfficeDecode is returned when an office document cannot be decoded.
	ErrOfficeDecode = errors.New("office document could not be decoded")
)

// AcquisitionError wraps errors with the failing step.
type AcquisitionError struct {
	Op      string
	Err     error
	Details string
}

func (e *AcquisitionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("acquisition: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("acquisition: %s failed: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func (e *AcquisitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapAcquisitionError wraps an error as an AcquisitionError if it isn't already one.
func WrapAcquisitionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return err
	}
	return &AcquisitionError{Op: op, Err: err, Details: details}
}
