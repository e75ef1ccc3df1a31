package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	log zerolog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.log.Error().
			Err(err).
			Str("cmd", name).
			Str("args", strings.Join(args, " ")).
			Int64("duration_ms", dur.Milliseconds()).
			Str("stderr", truncate(errb.String(), 8<<10)).
			Msg("exec failed")
	} else {
		r.log.Debug().
			Str("cmd", name).
			Int64("duration_ms", dur.Milliseconds()).
			Int("stdout_bytes", out.Len()).
			Msg("exec ok")
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractConfig configures the local tesseract engine.
type TesseractConfig struct {
	Tesseract     string // tesseract binary
	TesseractLang string // -l argument, e.g. "eng"
	Pdftoppm      string // pdftoppm binary used to rasterize PDFs
	DPI           int    // rasterization resolution
	MaxPages      int    // 0 means all pages
	TSVConfidence bool   // run a second TSV pass for word confidences
}

// TesseractOCRService implements OCRService with the tesseract CLI.
type TesseractOCRService struct {
	cfg    TesseractConfig
	runner Runner
	log    zerolog.Logger
}

var _ OCRService = (*TesseractOCRService)(nil)

// NewTesseractOCRService creates the engine backed by real processes.
func NewTesseractOCRService(cfg TesseractConfig) OCRService {
	log := logger.WithComponent("tesseract")
	return NewTesseractOCRServiceWithRunner(cfg, execRunner{log: log})
}

// NewTesseractOCRServiceWithRunner creates the engine with an explicit runner (for testing).
func NewTesseractOCRServiceWithRunner(cfg TesseractConfig, runner Runner) OCRService {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TesseractOCRService{
		cfg:    cfg,
		runner: runner,
		log:    logger.WithComponent("tesseract"),
	}
}

// Name returns the engine name.
func (t *TesseractOCRService) Name() string {
	return "tesseract"
}

// Close is a no-op; each Recognize call cleans up its own temp dir.
func (t *TesseractOCRService) Close() error {
	return nil
}

// Recognize writes the payload to a temp dir and runs tesseract over it.
func (t *TesseractOCRService) Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	content, err := readInput(op, data)
	if err != nil {
		return nil, err
	}

	var ext string
	mt := models.BaseMediaType(mediaType)
	switch mt {
	case models.MediaTypePDF:
		ext = ".pdf"
	case models.MediaTypeJPEG:
		ext = ".jpg"
	case models.MediaTypePNG:
		ext = ".png"
	case models.MediaTypeTIFF:
		ext = ".tiff"
	default:
		return nil, WrapOCRError(op, ErrUnsupportedInput, mt)
	}

	tmpDir, err := os.MkdirTemp("", "medparse-ocr-*")
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create temp dir")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.log.Warn().Err(err).Str("dir", tmpDir).Msg("failed to remove temp dir")
		}
	}()

	in := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(in, content, 0o600); err != nil {
		return nil, WrapOCRError(op, err, "failed to write temp input")
	}

	images := []string{in}
	if mt == models.MediaTypePDF {
		images, err = t.rasterize(ctx, in, tmpDir)
		if err != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, err.Error())
		}
	}

	result := &OCRResult{Engine: t.Name(), LanguageCodes: []string{t.cfg.TesseractLang}}
	var b strings.Builder
	var confSum float32
	var confCount int
	for _, img := range images {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ErrContextCanceled, ctx.Err().Error())
		}
		txt, err := t.tesseractOCR(ctx, img)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		result.PageCount++

		if t.cfg.TSVConfidence {
			if c, err := t.tesseractTSVConfidence(ctx, img); err == nil && c > 0 {
				confSum += c
				confCount++
			} else if err != nil {
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
	}

	result.Text = b.String()
	if strings.TrimSpace(result.Text) == "" {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ErrContextCanceled, ctx.Err().Error())
		}
		return nil, WrapOCRError(op, ErrEmptyDocument, strings.Join(result.Warnings, "; "))
	}

	heurConf := heuristicConfidence(result.Text)
	if confCount > 0 {
		result.Confidence = 0.7*(confSum/float32(confCount)) + 0.3*heurConf
	} else {
		result.Confidence = heurConf
	}
	if result.Confidence > 1.0 {
		result.Confidence = 1.0
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)
	return result, nil
}

// rasterize renders PDF pages to PNGs with pdftoppm.
func (t *TesseractOCRService) rasterize(ctx context.Context, pdfPath, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := t.runner.Run(ctx, t.cfg.Pdftoppm, "-r", strconv.Itoa(t.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if t.cfg.MaxPages > 0 && len(matches) > t.cfg.MaxPages {
		matches = matches[:t.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	return matches, nil
}

func (t *TesseractOCRService) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, path, "stdout", "-l", t.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *TesseractOCRService) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	out, _, err := t.runner.Run(ctx, t.cfg.Tesseract, path, "stdout", "-l", t.cfg.TesseractLang, "tsv")
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}
	return parseTSVConfidence(string(out)), nil
}

func parseTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		// conf is column 11; -1 marks non-word rows
		v, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}

var (
	reBoxNoise = regexp.MustCompile(`(?m)^[\s|_=~\-]{4,}$`)
	reLabUnit  = regexp.MustCompile(`(?i)(mg/dl|g/dl|mmol/l|iu/l|u/l|iu/ml|ng/ml|pg/ml|\d\s?%)`)
	reLabWord  = regexp.MustCompile(`(?i)\b(glucose|hemoglobin|haemoglobin|cholesterol|creatinine|hba1c|platelet|tsh|urea|triglycerides|reference|range|result)\b`)
	reNumber   = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
)

// heuristicConfidence scores decoded text by the presence of lab report artifacts.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2) // base
	if reNumber.MatchString(txt) {
		score += 0.15
	}
	if reLabUnit.MatchString(txt) {
		score += 0.2
	}
	if reLabWord.MatchString(txt) {
		score += 0.2
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}
