package ocr

import (
	"context"
	"io"
)

// noneOCRService is the engine used when OCR is disabled.
type noneOCRService struct{}

// NewNoneOCRService returns an engine that never recognizes anything.
func NewNoneOCRService() OCRService {
	return noneOCRService{}
}

func (noneOCRService) Name() string { return "none" }

func (noneOCRService) Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error) {
	return nil, NewOCRError("Recognize", ErrOCRUnavailable, "OCR_ENGINE is none")
}

func (noneOCRService) Close() error { return nil }
