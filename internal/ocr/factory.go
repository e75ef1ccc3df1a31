package ocr

import (
	"context"
	"fmt"

	"medparse/internal/config"
)

// NewService creates the engine selected by OCR_ENGINE.
func NewService(ctx context.Context, cfg *config.Config) (OCRService, error) {
	switch cfg.OCREngine {
	case config.OCREngineTesseract, "":
		return NewTesseractOCRService(TesseractConfig{
			Tesseract:     cfg.TesseractPath,
			TesseractLang: cfg.TesseractLang,
			Pdftoppm:      cfg.PdftoppmPath,
			DPI:           cfg.OCRDPI,
			MaxPages:      MaxPagesSync,
			TSVConfidence: true,
		}), nil
	case config.OCREngineGoogleVision:
		return NewGoogleVisionOCRService(ctx)
	case config.OCREngineDocumentAI:
		return NewDocumentAIOCRService(ctx, DocumentAIConfig{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
			Timeout:          cfg.OCRTimeout(),
		})
	case config.OCREngineNone:
		return NewNoneOCRService(), nil
	default:
		return nil, WrapOCRError("NewService", ErrOCRUnavailable, fmt.Sprintf("unknown engine %q", cfg.OCREngine))
	}
}

// NewPoolFromConfig creates the configured engine wrapped in a Pool.
func NewPoolFromConfig(ctx context.Context, cfg *config.Config) (*Pool, error) {
	svc, err := NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPool(svc, cfg.OCRWorkers, cfg.OCRTimeout()), nil
}
