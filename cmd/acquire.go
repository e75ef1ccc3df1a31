package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medparse/internal/acquisition"
	"medparse/internal/logger"
	"medparse/internal/ocr"
	"medparse/pkg/models"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire [file]",
	Short: "Extract text from a document without parsing it",
	Long: `Run only the text acquisition stage on a document. Text files and JSON
are decoded natively, PDFs use their text layer when it is usable, DOCX,
DOC and RTF are decoded directly, and scans and photos go through the
configured OCR engine. When every method fails a labeled placeholder is
returned instead of empty text.

Optional environment variables:
  OCR_ENGINE - tesseract (default), google-vision, document-ai or none
  OCR_WORKERS - concurrent OCR slots (default 4)
  OCR_TIMEOUT_SECONDS - per-document OCR timeout (default 60)
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - for Google engines`,
	Example: `  # Print the text of a scanned report
  medparse acquire scan.jpg

  # Include acquisition metadata
  medparse acquire report.pdf --metadata

  # JSON output to a file
  medparse acquire report.pdf --json -o text.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAcquire,
}

// AcquireOutput represents the JSON output structure when --json flag is used
type AcquireOutput struct {
	FileName           string   `json:"file_name"`
	FileSize           int64    `json:"file_size"`
	MediaType          string   `json:"media_type"`
	Method             string   `json:"method"`
	Engine             string   `json:"engine,omitempty"`
	QualityScore       float64  `json:"quality_score"`
	Language           string   `json:"language,omitempty"`
	PageCount          int      `json:"page_count,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	ProcessingDuration string   `json:"processing_duration"`
	Text               string   `json:"text"`
}

func init() {
	rootCmd.AddCommand(acquireCmd)

	acquireCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	acquireCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	acquireCmd.Flags().Bool("json", false, "Output as JSON")
	acquireCmd.Flags().String("media-type", "", "Declared media type (default: detect from extension and content)")
	acquireCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runAcquire(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("acquire")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	mediaType, _ := cmd.Flags().GetString("media-type")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	fileInfo, err := validateInputFile(path, cfg.MaxUploadBytes(), log)
	if err != nil {
		return err
	}

	log.Info().
		Str("file", path).
		Str("engine", cfg.OCREngine).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Msg("Starting text acquisition")

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	pool, err := ocr.NewPoolFromConfig(ctx, cfg)
	if err != nil {
		log.Warn().
			Err(err).
			Str("engine", cfg.OCREngine).
			Msg("OCR engine unavailable, images will use fallback text")
		pool = ocr.NewPool(ocr.NewNoneOCRService(), cfg.OCRWorkers, cfg.OCRTimeout())
	}
	defer func() {
		if closeErr := pool.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR engine")
		}
	}()

	doc, err := readDocument(path, mediaType, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	acquired, err := acquisition.NewChain(pool).Acquire(ctx, doc)
	if err != nil {
		return handleProcessingError(err, log)
	}
	duration := time.Since(start)

	resolved, _ := acquisition.ResolveMediaType(doc.MediaType, doc.Filename, doc.Content)

	log.Info().
		Str("method", string(acquired.Method)).
		Float64("quality", acquired.QualityScore).
		Dur("duration", duration).
		Int("text_length", len(acquired.Text)).
		Msg("Text acquisition completed")

	out := AcquireOutput{
		FileName:           filepath.Base(fileInfo.Name()),
		FileSize:           fileInfo.Size(),
		MediaType:          resolved,
		Method:             string(acquired.Method),
		Engine:             acquired.Engine,
		QualityScore:       acquired.QualityScore,
		Language:           acquired.Language,
		PageCount:          acquired.PageCount,
		Warnings:           acquired.Warnings,
		ProcessingDuration: duration.String(),
		Text:               acquired.Text,
	}
	return outputAcquired(out, acquired, outputPath, jsonOutput, includeMetadata, log)
}

func outputAcquired(out AcquireOutput, acquired *models.AcquiredText, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	var (
		data []byte
		err  error
	)

	if jsonOutput {
		data, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		var b strings.Builder
		if includeMetadata {
			fmt.Fprintf(&b, "=== Acquisition Results for %s ===\n", out.FileName)
			fmt.Fprintf(&b, "File size: %d bytes\n", out.FileSize)
			fmt.Fprintf(&b, "Media type: %s\n", out.MediaType)
			fmt.Fprintf(&b, "Method: %s\n", out.Method)
			if out.Engine != "" {
				fmt.Fprintf(&b, "OCR engine: %s\n", out.Engine)
			}
			fmt.Fprintf(&b, "Quality: %.2f\n", out.QualityScore)
			if out.Language != "" {
				fmt.Fprintf(&b, "Language: %s\n", out.Language)
			}
			if out.PageCount > 0 {
				fmt.Fprintf(&b, "Pages: %d\n", out.PageCount)
			}
			if acquired.IsFallback() {
				b.WriteString("Note: no text could be read, showing fallback text\n")
			}
			for _, w := range out.Warnings {
				fmt.Fprintf(&b, "Warning: %s\n", w)
			}
			fmt.Fprintf(&b, "Processing time: %s\n", out.ProcessingDuration)
			b.WriteString("\n=== Extracted Text ===\n\n")
		}
		b.WriteString(out.Text)
		data = []byte(b.String())
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(data)).
			Msg("Acquired text written to file")
		return nil
	}

	if _, err := os.Stdout.Write(data); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	if !jsonOutput {
		fmt.Println()
	}
	return nil
}
