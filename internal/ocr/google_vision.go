package ocr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"medparse/pkg/models"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// GoogleVisionOCRService implements OCRService using Google Cloud Vision API.
type GoogleVisionOCRService struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionOCRService creates a new OCR service with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionOCRService(ctx context.Context) (OCRService, error) {
	const op = "NewGoogleVisionOCRService"

	opts := googleClientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &GoogleVisionOCRService{
		client: client,
	}, nil
}

// NewGoogleVisionOCRServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionOCRServiceWithClient(client *vision.ImageAnnotatorClient) OCRService {
	return &GoogleVisionOCRService{
		client: client,
	}
}

// Name returns the engine name.
func (g *GoogleVisionOCRService) Name() string {
	return "google-vision"
}

// Recognize runs document text detection on an image, PDF or TIFF.
func (g *GoogleVisionOCRService) Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	content, err := readInput(op, data)
	if err != nil {
		return nil, err
	}

	var fileResp *visionpb.AnnotateFileResponse
	switch mt := models.BaseMediaType(mediaType); mt {
	case models.MediaTypePDF, models.MediaTypeTIFF:
		if mt == models.MediaTypePDF && (len(content) < 4 || string(content[:4]) != "%PDF") {
			return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
		}
		fileResp, err = g.annotateFile(ctx, content, mt)
	case models.MediaTypeJPEG, models.MediaTypePNG:
		fileResp, err = g.annotateImage(ctx, content)
	default:
		return nil, WrapOCRError(op, ErrUnsupportedInput, mt)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ErrContextCanceled, ctx.Err().Error())
		}
		return nil, WrapOCRError(op, err, "Vision API call failed")
	}

	result, err := g.processVisionResponse(fileResp)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	result.Engine = g.Name()
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

func (g *GoogleVisionOCRService) annotateFile(ctx context.Context, content []byte, mimeType string) (*visionpb.AnnotateFileResponse, error) {
	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  content,
					MimeType: mimeType,
				},
				Features: []*visionpb.Feature{
					{
						Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
					},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, fileResp.Error.Message)
	}
	return fileResp, nil
}

// annotateImage sends a single image and wraps the answer as a one-page file response.
func (g *GoogleVisionOCRService) annotateImage(ctx context.Context, content []byte) (*visionpb.AnnotateFileResponse, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{
						Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
					},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	return &visionpb.AnnotateFileResponse{Responses: resp.Responses}, nil
}

// processVisionResponse processes the Vision API response and extracts text with metadata.
func (g *GoogleVisionOCRService) processVisionResponse(fileResp *visionpb.AnnotateFileResponse) (*OCRResult, error) {
	if len(fileResp.Responses) == 0 {
		return nil, ErrEmptyDocument
	}

	var allText strings.Builder
	var confidenceSum float32
	var confidenceCount int
	var warnings []string
	languageSet := make(map[string]bool)
	pageCount := len(fileResp.Responses)

	if pageCount > MaxPagesSync {
		return nil, WrapOCRError("processVisionResponse", ErrTooManyPages, fmt.Sprintf("document has %d pages", pageCount))
	}

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %s", pageIdx+1, page.Error.Message))
			continue
		}
		if page.FullTextAnnotation == nil {
			continue
		}

		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.WriteString(page.FullTextAnnotation.Text)

		for _, textAnnotation := range page.TextAnnotations {
			if textAnnotation.Confidence > 0 {
				confidenceSum += textAnnotation.Confidence
				confidenceCount++
			}
		}

		for _, pageInfo := range page.FullTextAnnotation.Pages {
			if pageInfo.Confidence > 0 {
				confidenceSum += pageInfo.Confidence
				confidenceCount++
			}
			collectLanguages(languageSet, pageInfo.Property)
			for _, block := range pageInfo.Blocks {
				collectLanguages(languageSet, block.Property)
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

	extractedText := allText.String()
	if strings.TrimSpace(extractedText) == "" {
		return nil, ErrEmptyDocument
	}

	return &OCRResult{
		Text:          extractedText,
		PageCount:     pageCount,
		Confidence:    avgConfidence,
		LanguageCodes: languages,
		Warnings:      warnings,
	}, nil
}

func collectLanguages(set map[string]bool, prop *visionpb.TextAnnotation_TextProperty) {
	if prop == nil {
		return
	}
	for _, lang := range prop.DetectedLanguages {
		if lang.LanguageCode != "" {
			set[lang.LanguageCode] = true
		}
	}
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
