package ocr

import (
	"fmt"
	"io"
	"os"

	"google.golang.org/api/option"
)

// googleClientOptions builds client options from the credential environment.
// It returns nil when neither variable is set so clients fall back to ADC.
func googleClientOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// readInput reads an OCR payload and enforces the synchronous size limit.
func readInput(op string, data io.Reader) ([]byte, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read input data")
	}
	if len(content) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "empty input")
	}
	if len(content) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrFileTooLarge, fmt.Sprintf("file size: %d bytes", len(content)))
	}
	return content, nil
}
