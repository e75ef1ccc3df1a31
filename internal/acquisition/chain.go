// Package acquisition turns a raw document into text. Cheap methods are
// tried first (native decode, PDF text layer, office decode), then OCR, and
// finally a labeled placeholder, so a supported document always yields text.
package acquisition

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/internal/ocr"
	"medparse/pkg/models"
)

// MinTextLength is the shortest text accepted from a PDF layer, office
// decode or OCR run.
const MinTextLength = 20

// Recognizer is the OCR collaborator. *ocr.Pool satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, data io.Reader, mediaType string) (*ocr.OCRResult, error)
	Engine() string
}

// Chain is the text acquisition chain.
type Chain struct {
	ocr Recognizer
	log zerolog.Logger
}

// NewChain creates a chain. A nil recognizer disables OCR.
func NewChain(recognizer Recognizer) *Chain {
	return &Chain{
		ocr: recognizer,
		log: logger.WithComponent("acquisition"),
	}
}

// Acquire returns non-empty text for every supported document. The only
// error is ErrUnsupportedMediaType.
func (c *Chain) Acquire(ctx context.Context, doc models.RawDocument) (*models.AcquiredText, error) {
	mediaType, err := ResolveMediaType(doc.MediaType, doc.Filename, doc.Content)
	if err != nil {
		c.log.Warn().Err(err).Str("file", doc.Filename).Str("declared", doc.MediaType).Msg("Rejected document")
		return nil, err
	}

	log := c.log.With().Str("file", doc.Filename).Str("media_type", mediaType).Logger()

	var result *models.AcquiredText
	switch mediaType {
	case models.MediaTypeText, models.MediaTypeCSV, models.MediaTypeJSON:
		result = c.acquireNative(doc, mediaType)
	case models.MediaTypePDF:
		result = c.acquirePDF(ctx, doc)
	case models.MediaTypeJPEG, models.MediaTypePNG, models.MediaTypeTIFF:
		result = c.acquireOCR(ctx, doc, doc.Content, mediaType, nil)
	case models.MediaTypeDOCX, models.MediaTypeDOC, models.MediaTypeRTF:
		result = c.acquireOffice(ctx, doc, mediaType)
	}

	log.Info().
		Str("method", string(result.Method)).
		Float64("quality", result.QualityScore).
		Int("chars", utf8.RuneCountInString(result.Text)).
		Msg("Text acquired")

	return result, nil
}

func (c *Chain) acquireNative(doc models.RawDocument, mediaType string) *models.AcquiredText {
	raw := decodeText(doc.Content)

	var warnings []string
	if mediaType == models.MediaTypeJSON {
		if flat, err := flattenJSON([]byte(raw)); err == nil {
			raw = flat
		} else {
			warnings = append(warnings, "invalid JSON, decoded as plain text: "+err.Error())
		}
	}

	text := Normalize(raw)
	if text == "" {
		return IntelligentFallback(doc.Filename, ReasonEmptyInput, warnings)
	}
	return &models.AcquiredText{
		Text:         text,
		QualityScore: QualityScore(text),
		Method:       models.AcquisitionNative,
		Language:     detectLanguage(text),
		PageCount:    1,
		Warnings:     warnings,
	}
}

func (c *Chain) acquirePDF(ctx context.Context, doc models.RawDocument) *models.AcquiredText {
	if len(doc.Content) == 0 {
		return IntelligentFallback(doc.Filename, ReasonEmptyInput, nil)
	}

	var warnings []string
	info, err := inspectPDF(doc.Content)
	if err != nil {
		warnings = append(warnings, "pdf inspection: "+err.Error())
	}

	layer, pages, err := pdfTextLayer(doc.Content)
	if err != nil {
		warnings = append(warnings, err.Error())
	}
	if pages == 0 {
		pages = info.Pages
	}

	text := Normalize(layer)
	if utf8.RuneCountInString(text) >= MinTextLength {
		return &models.AcquiredText{
			Text:         text,
			QualityScore: QualityScore(text),
			Method:       models.AcquisitionPDFLayer,
			Language:     detectLanguage(text),
			PageCount:    pages,
			Warnings:     warnings,
		}
	}

	if info.HasImages {
		warnings = append(warnings, "scanned PDF: image content without a usable text layer")
	} else {
		warnings = append(warnings, ErrNoTextLayer.Error())
	}
	return c.acquireOCR(ctx, doc, doc.Content, models.MediaTypePDF, warnings)
}

func (c *Chain) acquireOffice(ctx context.Context, doc models.RawDocument, mediaType string) *models.AcquiredText {
	var raw string
	var err error
	switch mediaType {
	case models.MediaTypeDOCX:
		raw, err = extractDocx(doc.Content)
	case models.MediaTypeDOC:
		raw, err = extractDoc(doc.Content)
	case models.MediaTypeRTF:
		raw, err = extractRTF(doc.Content)
	}

	var warnings []string
	if err == nil {
		text := Normalize(raw)
		if utf8.RuneCountInString(text) >= MinTextLength {
			return &models.AcquiredText{
				Text:         text,
				QualityScore: QualityScore(text),
				Method:       models.AcquisitionNative,
				Language:     detectLanguage(text),
				PageCount:    1,
			}
		}
		warnings = append(warnings, "office decode produced too little text")
	} else {
		warnings = append(warnings, err.Error())
	}

	if mediaType == models.MediaTypeDOCX {
		if img, imgType, ok := docxImage(doc.Content); ok {
			return c.acquireOCR(ctx, doc, img, imgType, warnings)
		}
	}
	if err != nil {
		return IntelligentFallback(doc.Filename, ReasonOfficeDecode, warnings)
	}
	return IntelligentFallback(doc.Filename, ReasonOCRSkipped, warnings)
}

// acquireOCR runs one recognition inside a pool slot and falls through to
// placeholder text on any failure.
func (c *Chain) acquireOCR(ctx context.Context, doc models.RawDocument, payload []byte, mediaType string, warnings []string) *models.AcquiredText {
	if len(payload) == 0 {
		return IntelligentFallback(doc.Filename, ReasonEmptyInput, warnings)
	}
	if c.ocr == nil {
		return IntelligentFallback(doc.Filename, ReasonOCRDisabled, warnings)
	}
	if ctx.Err() != nil {
		return IntelligentFallback(doc.Filename, ReasonCanceled, warnings)
	}

	res, err := c.ocr.Recognize(ctx, bytes.NewReader(payload), mediaType)
	if err != nil {
		c.log.Warn().Err(err).Str("file", doc.Filename).Str("engine", c.ocr.Engine()).Msg("OCR failed, using fallback text")
		warnings = append(warnings, "ocr: "+err.Error())
		switch {
		case errors.Is(err, ocr.ErrOCRUnavailable):
			return IntelligentFallback(doc.Filename, ReasonOCRDisabled, warnings)
		case errors.Is(err, ocr.ErrContextCanceled):
			return IntelligentFallback(doc.Filename, ReasonCanceled, warnings)
		case errors.Is(err, ocr.ErrEmptyDocument):
			return IntelligentFallback(doc.Filename, ReasonOCREmpty, warnings)
		default:
			return IntelligentFallback(doc.Filename, ReasonOCRFailed, warnings)
		}
	}
	warnings = append(warnings, res.Warnings...)

	text := Normalize(res.Text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return IntelligentFallback(doc.Filename, ReasonOCREmpty, warnings)
	}

	quality := QualityScore(text)
	if res.Confidence > 0 {
		quality = clamp01(0.5*quality + 0.5*float64(res.Confidence))
	}
	language := strings.ToLower(res.PrimaryLanguage())
	if language == "" || language == "eng" {
		language = detectLanguage(text)
	}

	return &models.AcquiredText{
		Text:         text,
		QualityScore: quality,
		Method:       models.AcquisitionOCR,
		Language:     language,
		PageCount:    res.PageCount,
		Engine:       res.Engine,
		Warnings:     warnings,
	}
}
