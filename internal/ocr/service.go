// Package ocr provides text recognition for scanned medical documents.
//
// Engines:
//   - tesseract: local tesseract binary, PDFs rasterized with pdftoppm first
//   - google-vision: Google Cloud Vision document text detection
//   - document-ai: Google Document AI OCR processor
//   - none: always unavailable, callers fall through to their own fallback
//
// Google engines read credentials from the environment:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous PDF/TIFF processing
//
// Recognition is a blocking call on an external resource. Pool bounds the
// number of concurrent recognitions and guarantees slot release.
package ocr

import (
	"context"
	"io"
	"time"
)

// OCRService defines the interface for OCR text extraction services.
type OCRService interface {
	// Recognize extracts text from an image or scanned document.
	// mediaType selects the input handling (PDF, TIFF, JPEG, PNG).
	Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error)

	// Name returns the engine name recorded in acquisition metadata.
	Name() string

	// Close releases engine resources.
	Close() error
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the extracted text content from all pages, concatenated in reading order.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// Confidence is the average confidence score across all detected text (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// Engine is the name of the engine that produced the text.
	Engine string `json:"engine"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// LanguageCodes contains the detected languages in the document.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// Warnings collects non-fatal per-page problems.
	Warnings []string `json:"warnings,omitempty"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// PrimaryLanguage returns the first detected language or "".
func (r *OCRResult) PrimaryLanguage() string {
	if r == nil || len(r.LanguageCodes) == 0 {
		return ""
	}
	return r.LanguageCodes[0]
}
