package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medparse/internal/logger"
	"medparse/internal/pipeline"
	"medparse/pkg/models"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract structured medical data from a single document",
	Long: `Run one document through the full pipeline: text acquisition (native
text, PDF text layer, office formats or OCR), classification, extraction,
the confidence gate, benchmarking and annotation.

The output is the parsing result as JSON. With --text only the annotated
document text is printed.

Optional environment variables:
  OCR_ENGINE - tesseract (default), google-vision, document-ai or none
  ANALYZER - heuristic (default) or openai
  OPENAI_API_KEY - required when ANALYZER=openai
  RULES_FILE - custom normalization rule table (YAML)
  REFERENCE_FILE - custom benchmark reference datasets (YAML)
  DEFAULT_REGION - regional standard used when --region is not given
  CONFIDENCE_THRESHOLD - gate threshold (default 0.70)`,
	Example: `  # Parse a lab report
  medparse parse lab_report.pdf

  # Benchmark against a 52 year old female patient using US standards
  medparse parse lipid_panel.jpg --age 52 --gender female --region US

  # Save the result
  medparse parse report.pdf -o result.json

  # Print the document with its annotation block
  medparse parse report.txt --text`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	parseCmd.Flags().String("media-type", "", "Declared media type (default: detect from extension and content)")
	parseCmd.Flags().Bool("text", false, "Print the annotated text instead of JSON")
	parseCmd.Flags().Bool("compact", false, "Compact JSON output")
	parseCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	addPatientFlags(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("parse")

	outputPath, _ := cmd.Flags().GetString("output")
	mediaType, _ := cmd.Flags().GetString("media-type")
	textOutput, _ := cmd.Flags().GetBool("text")
	compact, _ := cmd.Flags().GetBool("compact")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	patient, err := patientFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	if _, err := validateInputFile(path, cfg.MaxUploadBytes(), log); err != nil {
		return err
	}

	log.Info().
		Str("file", path).
		Str("output", outputPath).
		Str("media_type", mediaType).
		Int("timeout", timeoutSecs).
		Msg("Starting document parsing")

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	p, err := pipeline.NewFromConfig(ctx, cfg)
	if err != nil {
		return handleProcessingError(err, log)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release pipeline resources")
		}
	}()

	doc, err := readDocument(path, mediaType, patient)
	if err != nil {
		return err
	}

	result, err := p.Process(ctx, doc)
	if err != nil {
		return handleProcessingError(err, log)
	}

	log.Info().
		Str("result_id", result.ID).
		Str("method", result.ParsingMethod).
		Float64("confidence", result.Confidence).
		Int("lab_values", len(result.ExtractedData.LabValues)).
		Int("benchmarks", len(result.Benchmarks)).
		Bool("fallback", result.FallbackMethod).
		Str("duration", result.ProcessingDuration).
		Msg("Document parsed")

	return outputParseResult(result, outputPath, textOutput, compact, log)
}

func outputParseResult(result *models.ParsingResult, outputPath string, textOutput, compact bool, log zerolog.Logger) error {
	var (
		data []byte
		err  error
	)

	switch {
	case textOutput:
		text := result.AugmentedText
		if text == "" && result.EnhancedAnalysis != nil {
			text = result.EnhancedAnalysis.Summary
		}
		data = []byte(text + "\n")
	case compact:
		data, err = json.Marshal(result)
	default:
		data, err = json.MarshalIndent(result, "", "  ")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if !textOutput {
			fmt.Println()
		}
		return nil
	}

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
		Msg("Parsing result written to file")
	return nil
}
