package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	text  string
	tsv   string
	pages int
	fail  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= f.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if f.fail {
			return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
		}
		if args[len(args)-1] == "tsv" {
			return []byte(f.tsv), nil, nil
		}
		return []byte(f.text), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t10\t90\tGlucose\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t20\t10\t80\t95\n"

func TestTesseract_Image(t *testing.T) {
	runner := &fakeRunner{text: "Glucose Fasting 95 mg/dl\n", tsv: sampleTSV}
	svc := NewTesseractOCRServiceWithRunner(TesseractConfig{TSVConfidence: true}, runner)

	result, err := svc.Recognize(context.Background(), bytes.NewReader([]byte("jpegdata")), "image/jpeg")

	require.NoError(t, err)
	assert.Equal(t, "Glucose Fasting 95 mg/dl\n", result.Text)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, "tesseract", result.Engine)
	assert.Equal(t, []string{"eng"}, result.LanguageCodes)
	// 0.7 * 0.85 (tsv) + 0.3 * 0.75 (heuristic)
	assert.InDelta(t, 0.82, result.Confidence, 0.01)
	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0], "input.jpg stdout -l eng")
}

func TestTesseract_PDFIsRasterized(t *testing.T) {
	runner := &fakeRunner{text: "Hemoglobin 13.2 g/dL", pages: 2}
	svc := NewTesseractOCRServiceWithRunner(TesseractConfig{DPI: 200}, runner)

	result, err := svc.Recognize(context.Background(), bytes.NewReader([]byte("%PDF-1.4")), "application/pdf")

	require.NoError(t, err)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, "Hemoglobin 13.2 g/dL\n\f\nHemoglobin 13.2 g/dL", result.Text)
	assert.True(t, strings.HasPrefix(runner.calls[0], "pdftoppm -r 200 -png "))
}

func TestTesseract_FailuresBecomeEmptyDocument(t *testing.T) {
	runner := &fakeRunner{fail: true}
	svc := NewTesseractOCRServiceWithRunner(TesseractConfig{}, runner)

	_, err := svc.Recognize(context.Background(), bytes.NewReader([]byte("pngdata")), "image/png")

	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Contains(t, err.Error(), "pixReadStream")
}

func TestTesseract_RejectsInput(t *testing.T) {
	svc := NewTesseractOCRServiceWithRunner(TesseractConfig{}, &fakeRunner{})

	_, err := svc.Recognize(context.Background(), bytes.NewReader([]byte("text")), "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedInput)

	_, err = svc.Recognize(context.Background(), bytes.NewReader(nil), "image/png")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = svc.Recognize(context.Background(), bytes.NewReader(make([]byte, MaxFileSizeBytes+1)), "image/png")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestTesseract_CloseThenRecognize(t *testing.T) {
	runner := &fakeRunner{text: "TSH 2.1 mIU/L"}
	svc := NewTesseractOCRServiceWithRunner(TesseractConfig{}, runner)

	pool := NewPool(svc, 1, 0)
	result, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("pngdata")), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "TSH 2.1 mIU/L", result.Text)

	assert.NoError(t, pool.Close())
	assert.NoError(t, svc.Close())
}

func TestParseTSVConfidence(t *testing.T) {
	assert.InDelta(t, 0.85, parseTSVConfidence(sampleTSV), 0.0001)
	assert.Zero(t, parseTSVConfidence("level\tconf\n"))
}

func TestHeuristicConfidence(t *testing.T) {
	assert.InDelta(t, 0.2, heuristicConfidence("scribbles"), 0.0001)
	assert.InDelta(t, 0.75, heuristicConfidence("Glucose Fasting 95 mg/dl"), 0.0001)
}

func TestOCRError(t *testing.T) {
	err := WrapOCRError("Recognize", ErrOCRTimeout, "after 1s")

	assert.ErrorIs(t, err, ErrOCRTimeout)
	assert.Equal(t, "ocr: Recognize failed: after 1s: OCR processing timed out", err.Error())
	assert.Same(t, err, WrapOCRError("Outer", err, "ignored"))
	assert.Nil(t, WrapOCRError("Recognize", nil, ""))
}
