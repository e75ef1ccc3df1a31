package ocr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

// DocumentAIConfig holds the processor coordinates for the Document AI engine.
type DocumentAIConfig struct {
	ProjectID        string        // Google Cloud project
	Location         string        // Processor location, "us" or "eu"
	ProcessorID      string        // OCR processor ID
	ProcessorVersion string        // Optional pinned processor version
	Timeout          time.Duration // Per-request timeout
}

// DocumentAIOCRService implements OCRService using a Google Document AI OCR processor.
type DocumentAIOCRService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIOCRService creates the engine with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
func NewDocumentAIOCRService(ctx context.Context, config DocumentAIConfig) (OCRService, error) {
	const op = "NewDocumentAIOCRService"

	if config.ProjectID == "" {
		return nil, WrapOCRError(op, ErrOCRUnavailable, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrOCRUnavailable, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	credOptions := googleClientOptions()
	clientOptions = append(clientOptions, credOptions...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(credOptions) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIOCRServiceWithClient(config, client), nil
}

// NewDocumentAIOCRServiceWithClient creates the engine with an explicit client (for testing).
func NewDocumentAIOCRServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) OCRService {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIOCRService{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// Name returns the engine name.
func (p *DocumentAIOCRService) Name() string {
	return "document-ai"
}

// Recognize sends the raw document to the OCR processor.
func (p *DocumentAIOCRService) Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	content, err := readInput(op, data)
	if err != nil {
		return nil, err
	}

	mt := models.BaseMediaType(mediaType)
	switch mt {
	case models.MediaTypePDF:
		if len(content) < 4 || string(content[:4]) != "%PDF" {
			return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
		}
	case models.MediaTypeTIFF, models.MediaTypeJPEG, models.MediaTypePNG:
	default:
		return nil, WrapOCRError(op, ErrUnsupportedInput, mt)
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.getProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mt,
			},
		},
	}

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	result := p.documentToResult(resp.GetDocument())
	if strings.TrimSpace(result.Text) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "processor returned no text")
	}

	result.Engine = p.Name()
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	p.log.Debug().
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Msg("Document AI OCR completed")

	return result, nil
}

func (p *DocumentAIOCRService) documentToResult(doc *documentaipb.Document) *OCRResult {
	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]bool)

	for _, page := range doc.GetPages() {
		if c := page.GetLayout().GetConfidence(); c > 0 {
			confidenceSum += c
			confidenceCount++
		}
		for _, lang := range page.GetDetectedLanguages() {
			if code := lang.GetLanguageCode(); code != "" {
				languageSet[code] = true
			}
		}
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	languages := make([]string, 0, len(languageSet))
	for lang := range languageSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	return &OCRResult{
		Text:          doc.GetText(),
		PageCount:     len(doc.GetPages()),
		Confidence:    avgConfidence,
		LanguageCodes: languages,
	}
}

// getProcessorName constructs the full processor name for Document AI API.
func (p *DocumentAIOCRService) getProcessorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to OCR errors.
func (p *DocumentAIOCRService) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"), strings.Contains(errStr, "UNAUTHENTICATED"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapOCRError(op, ErrOCRUnavailable, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return WrapOCRError(op, ErrUnsupportedInput, "document format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, ErrOCRTimeout, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, ErrContextCanceled, "processing was canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close closes the underlying Document AI client.
func (p *DocumentAIOCRService) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
