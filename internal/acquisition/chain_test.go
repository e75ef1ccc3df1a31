package acquisition_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medparse/internal/acquisition"
	"medparse/internal/ocr"
	"medparse/pkg/models"
)

type stubRecognizer struct {
	result    *ocr.OCRResult
	err       error
	calls     int
	mediaType string
}

func (s *stubRecognizer) Recognize(ctx context.Context, data io.Reader, mediaType string) (*ocr.OCRResult, error) {
	s.calls++
	s.mediaType = mediaType
	if _, err := io.ReadAll(data); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubRecognizer) Engine() string { return "stub" }

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}

func TestAcquire_PlainText(t *testing.T) {
	chain := acquisition.NewChain(nil)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte("Glucose: 95 mg / dl (Normal: 70-110)\r\n"),
		MediaType: "text/plain; charset=utf-8",
		Filename:  "report.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, "Glucose: 95 mg/dL (Normal: 70-110)", got.Text)
	assert.Equal(t, models.AcquisitionNative, got.Method)
	assert.Equal(t, "en", got.Language)
	assert.Greater(t, got.QualityScore, acquisition.FallbackQuality)
}

func TestAcquire_JSONIsFlattened(t *testing.T) {
	chain := acquisition.NewChain(nil)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte(`{"results":[{"parameter":"HbA1c","value":"5.4","unit":"%"}]}`),
		MediaType: models.MediaTypeJSON,
	})

	require.NoError(t, err)
	assert.Equal(t, "HbA1c: 5.4 %", got.Text)
	assert.Equal(t, models.AcquisitionNative, got.Method)
}

func TestAcquire_EmptyTextFallsBack(t *testing.T) {
	chain := acquisition.NewChain(nil)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte(" \n\t "),
		MediaType: models.MediaTypeText,
		Filename:  "notes.txt",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, got.Text)
	assert.True(t, got.IsFallback())
}

func TestAcquire_ZeroBytePDFNeverEmpty(t *testing.T) {
	rec := &stubRecognizer{}
	chain := acquisition.NewChain(rec)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		MediaType: models.MediaTypePDF,
		Filename:  "scan.pdf",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, got.Text)
	assert.Equal(t, models.AcquisitionIntelligentFallback, got.Method)
	assert.Equal(t, acquisition.FallbackQuality, got.QualityScore)
	assert.Zero(t, rec.calls)
}

func TestAcquire_CorruptPDFGoesToOCR(t *testing.T) {
	rec := &stubRecognizer{result: &ocr.OCRResult{
		Text:       "Serum Creatinine 1.1 mg/dl\nBlood Urea 28 mg/dl",
		PageCount:  1,
		Confidence: 0.9,
		Engine:     "stub",
	}}
	chain := acquisition.NewChain(rec)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte("%PDF-1.4 truncated"),
		MediaType: models.MediaTypePDF,
		Filename:  "kft.pdf",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, models.MediaTypePDF, rec.mediaType)
	assert.Equal(t, models.AcquisitionOCR, got.Method)
	assert.Equal(t, "stub", got.Engine)
	assert.Contains(t, got.Text, "1.1 mg/dL")
}

func TestAcquire_ImageWithoutOCRFallsBack(t *testing.T) {
	chain := acquisition.NewChain(nil)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   pngHeader,
		MediaType: models.MediaTypePNG,
		Filename:  "IMG_20240311.png",
	})

	require.NoError(t, err)
	assert.True(t, got.IsFallback())
	assert.Equal(t, -1, strings.IndexFunc(got.Text, unicode.IsDigit))
	assert.Contains(t, got.Text, string(acquisition.ReasonOCRDisabled))
}

func TestAcquire_OCRFailureFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason acquisition.FallbackReason
	}{
		{"engine failure", ocr.WrapOCRError("Recognize", ocr.ErrOCRFailed, "bad image"), acquisition.ReasonOCRFailed},
		{"engine timeout", ocr.WrapOCRError("WithWorker", ocr.ErrOCRTimeout, ""), acquisition.ReasonOCRFailed},
		{"engine unavailable", ocr.NewOCRError("Recognize", ocr.ErrOCRUnavailable, ""), acquisition.ReasonOCRDisabled},
		{"empty output", ocr.WrapOCRError("Recognize", ocr.ErrEmptyDocument, ""), acquisition.ReasonOCREmpty},
		{"untyped", errors.New("boom"), acquisition.ReasonOCRFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := acquisition.NewChain(&stubRecognizer{err: tt.err})

			got, acqErr := chain.Acquire(context.Background(), models.RawDocument{
				Content:   pngHeader,
				MediaType: models.MediaTypePNG,
				Filename:  "unknown.png",
			})

			require.NoError(t, acqErr)
			assert.True(t, got.IsFallback())
			assert.Contains(t, got.Text, string(tt.reason))
			assert.LessOrEqual(t, got.QualityScore, acquisition.FallbackQuality)
		})
	}
}

func TestAcquire_ShortOCROutputFallsBack(t *testing.T) {
	chain := acquisition.NewChain(&stubRecognizer{result: &ocr.OCRResult{Text: "~ |", Engine: "stub"}})

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   pngHeader,
		MediaType: models.MediaTypePNG,
	})

	require.NoError(t, err)
	assert.True(t, got.IsFallback())
	assert.Contains(t, got.Text, string(acquisition.ReasonOCREmpty))
}

func TestAcquire_CanceledContextFallsBack(t *testing.T) {
	rec := &stubRecognizer{result: &ocr.OCRResult{Text: "never used"}}
	chain := acquisition.NewChain(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := chain.Acquire(ctx, models.RawDocument{
		Content:   pngHeader,
		MediaType: models.MediaTypePNG,
	})

	require.NoError(t, err)
	assert.True(t, got.IsFallback())
	assert.Zero(t, rec.calls)
}

func TestAcquire_OCRQualityBlendsConfidence(t *testing.T) {
	text := "Hemoglobin 13.5 g/dl\nPlatelets 250 10^3/ul"
	rec := &stubRecognizer{result: &ocr.OCRResult{Text: text, Confidence: 0.8, Engine: "stub", PageCount: 1}}
	chain := acquisition.NewChain(rec)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   pngHeader,
		MediaType: "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, models.AcquisitionOCR, got.Method)
	expected := 0.5*acquisition.QualityScore(got.Text) + 0.4
	assert.InDelta(t, expected, got.QualityScore, 1e-6)
	assert.Equal(t, 1, got.PageCount)
}

func TestAcquire_RTF(t *testing.T) {
	chain := acquisition.NewChain(nil)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:  []byte(`{\rtf1\ansi Thyroid Profile\par TSH\tab 2.5 uIU/ml\par}`),
		Filename: "thyroid.rtf",
	})

	require.NoError(t, err)
	assert.Equal(t, models.AcquisitionNative, got.Method)
	assert.Equal(t, "Thyroid Profile\nTSH\t2.5 \u03bcIU/mL", got.Text)
}

func TestAcquire_BrokenRTFFallsBack(t *testing.T) {
	chain := acquisition.NewChain(&stubRecognizer{})

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte("no rtf header here"),
		MediaType: models.MediaTypeRTF,
		Filename:  "letter.rtf",
	})

	require.NoError(t, err)
	assert.True(t, got.IsFallback())
	assert.Contains(t, got.Text, string(acquisition.ReasonOfficeDecode))
}

func TestAcquire_UnsupportedMediaTypeRejected(t *testing.T) {
	rec := &stubRecognizer{}
	chain := acquisition.NewChain(rec)

	got, err := chain.Acquire(context.Background(), models.RawDocument{
		Content:   []byte("GIF89a"),
		MediaType: "image/gif",
		Filename:  "scan.gif",
	})

	assert.Nil(t, got)
	assert.ErrorIs(t, err, acquisition.ErrUnsupportedMediaType)
	assert.Zero(t, rec.calls)
}

func TestAcquire_NeverEmptyForSupportedTypes(t *testing.T) {
	chain := acquisition.NewChain(&stubRecognizer{err: ocr.ErrOCRFailed})
	types := []string{
		models.MediaTypePDF, models.MediaTypeJPEG, models.MediaTypePNG, models.MediaTypeTIFF,
		models.MediaTypeText, models.MediaTypeCSV, models.MediaTypeJSON,
		models.MediaTypeDOCX, models.MediaTypeDOC, models.MediaTypeRTF,
	}
	payloads := [][]byte{nil, {0x00}, []byte("x"), pngHeader}

	for _, mt := range types {
		for _, p := range payloads {
			got, err := chain.Acquire(context.Background(), models.RawDocument{Content: p, MediaType: mt})
			require.NoError(t, err, mt)
			assert.NotEmpty(t, strings.TrimSpace(got.Text), "%s %q", mt, p)
		}
	}
}
