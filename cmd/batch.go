package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medparse/internal/acquisition"
	"medparse/internal/config"
	"medparse/internal/export"
	"medparse/internal/logger"
	"medparse/internal/pipeline"
	"medparse/internal/sheets"
	"medparse/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Parse all documents in a folder in parallel",
	Long: `Parse every supported document in a folder (recursively) on a bounded
worker pool and summarize the results. Results can be exported to an
XLSX workbook and appended to a Google Sheet.

Patient context comes from the --age, --gender and --region flags, or per
file from a patient manifest sheet with the columns File, Age, Gender and
Region.

Optional environment variables:
  BATCH_WORKERS - number of parallel workers (default: OCR_WORKERS)
  GOOGLE_SHEET_URL - Google Sheet to append results to (with --sheets)
  GOOGLE_SHEET_WORKSHEET - worksheet name (default: Results)
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - for Google Sheets`,
	Example: `  # Parse a folder and print a summary
  medparse batch ./reports

  # Export to a workbook
  medparse batch ./reports --xlsx results.xlsx

  # Append to the configured Google Sheet using a patient manifest
  medparse batch ./reports --sheets --patients-sheet Patients

  # Eight workers, verbose progress
  medparse batch ./reports --workers 8 --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS or OCR_WORKERS)")
	batchCmd.Flags().String("xlsx", "", "Write results to this XLSX workbook")
	batchCmd.Flags().Bool("sheets", false, "Append results to the Google Sheet in GOOGLE_SHEET_URL")
	batchCmd.Flags().String("worksheet", "", "Worksheet for --sheets (default: GOOGLE_SHEET_WORKSHEET)")
	batchCmd.Flags().String("patients-sheet", "", "Read per-file patient context from this worksheet")
	batchCmd.Flags().Bool("verbose", false, "Show detailed processing information")
	batchCmd.Flags().Int("timeout", 30, "Batch timeout in minutes")
	addPatientFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	workers, _ := cmd.Flags().GetInt("workers")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	patientsSheet, _ := cmd.Flags().GetString("patients-sheet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeoutMins, _ := cmd.Flags().GetInt("timeout")

	defaultPatient, err := patientFromFlags(cmd)
	if err != nil {
		return err
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if workers < 1 {
		workers = cfg.Workers()
	}
	if worksheet == "" {
		worksheet = cfg.GoogleSheetWorksheet
	}
	if (toSheets || patientsSheet != "") && cfg.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required for --sheets and --patients-sheet")
	}

	log.Info().
		Str("folder", folderPath).
		Int("workers", workers).
		Str("xlsx", xlsxPath).
		Bool("sheets", toSheets).
		Str("patients_sheet", patientsSheet).
		Msg("Starting batch processing")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         MEDPARSE BATCH PROCESSING")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder: %s\n", folderPath)
	fmt.Println()

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutMins)*time.Minute, log)
	defer cancel()

	files, err := findDocuments(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find documents: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No supported documents found in folder.")
		return nil
	}

	var sheetsService *sheets.Service
	if toSheets || patientsSheet != "" {
		sheetsService, err = sheets.NewSheetsService(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
	}

	var manifest map[string]models.PatientContext
	if patientsSheet != "" {
		manifest, err = sheetsService.ReadPatients(ctx, patientsSheet)
		if err != nil {
			return fmt.Errorf("failed to read patient manifest: %w", err)
		}
	}

	docs, skipped := loadDocuments(files, cfg, defaultPatient, manifest, log)

	p, err := pipeline.NewFromConfig(ctx, cfg)
	if err != nil {
		return handleProcessingError(err, log)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release pipeline resources")
		}
	}()

	fmt.Printf("Processing %d documents with %d parallel workers...\n", len(docs), workers)
	fmt.Println()

	results := p.ProcessBatchWithProgress(ctx, docs, workers, func(done, total int, r pipeline.BatchResult) {
		printProgress(done, total, r, verbose, log)
	})

	entries := make([]export.Entry, 0, len(results)+len(skipped))
	for _, r := range results {
		entries = append(entries, export.Entry{Filename: r.Filename, Result: r.Result, Err: r.Err})
	}
	entries = append(entries, skipped...)

	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Status()]++
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Parsed: %d\n", counts[pipeline.StatusSuccess])
	if n := counts[pipeline.StatusDegraded]; n > 0 {
		fmt.Printf("Degraded (fallback): %d\n", n)
	}
	if n := counts[pipeline.StatusError]; n > 0 {
		fmt.Printf("Errors: %d\n", n)
	}
	fmt.Println()

	if xlsxPath != "" {
		if err := writeWorkbook(xlsxPath, entries); err != nil {
			return err
		}
		fmt.Printf("Workbook: %s\n", xlsxPath)
	}

	if toSheets {
		fmt.Println("Writing results to Google Sheet...")
		if err := sheetsService.WriteResults(ctx, entries, worksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
		fmt.Printf("Sheet: %s\n", worksheet)
		fmt.Printf("Rows added: %d\n", len(entries))
		fmt.Printf("URL: %s\n", cfg.GoogleSheetURL)
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(entries)).
		Int("success", counts[pipeline.StatusSuccess]).
		Int("degraded", counts[pipeline.StatusDegraded]).
		Int("errors", counts[pipeline.StatusError]).
		Msg("Batch processing completed")

	return nil
}

// findDocuments returns every file under folderPath whose extension maps to
// a supported media type.
func findDocuments(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		if _, err := acquisition.ResolveMediaType("", info.Name(), nil); err == nil {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// loadDocuments reads files into raw documents. Files that cannot be read
// or exceed the upload limit become error entries.
func loadDocuments(files []string, cfg *config.Config, defaultPatient *models.PatientContext, manifest map[string]models.PatientContext, log zerolog.Logger) ([]models.RawDocument, []export.Entry) {
	docs := make([]models.RawDocument, 0, len(files))
	var skipped []export.Entry

	for _, path := range files {
		name := filepath.Base(path)

		if _, err := validateInputFile(path, cfg.MaxUploadBytes(), log); err != nil {
			skipped = append(skipped, export.Entry{Filename: name, Err: err})
			continue
		}

		patient := defaultPatient
		if p, ok := manifest[strings.ToLower(name)]; ok {
			if p.Region == "" && defaultPatient != nil {
				p.Region = defaultPatient.Region
			}
			patient = &p
		}

		doc, err := readDocument(path, "", patient)
		if err != nil {
			skipped = append(skipped, export.Entry{Filename: name, Err: err})
			continue
		}
		doc.Filename = name
		docs = append(docs, doc)
	}

	return docs, skipped
}

func printProgress(done, total int, r pipeline.BatchResult, verbose bool, log zerolog.Logger) {
	fmt.Printf("[%d/%d] %s - %s", done, total, r.Filename, statusLabel(r.Status))

	switch {
	case r.Err != nil:
		fmt.Printf(" (%s)", r.Err.Error())
	case r.Result != nil:
		fmt.Printf(" (%s, confidence %.2f, %d lab values)",
			r.Result.ParsingMethod, r.Result.Confidence, len(r.Result.ExtractedData.LabValues))
	}
	fmt.Println()

	if verbose && r.Result != nil {
		log.Info().
			Str("file", r.Filename).
			Str("result_id", r.Result.ID).
			Str("category", string(r.Result.SourceMetadata.Category)).
			Str("specialty", r.Result.SourceMetadata.Specialty).
			Int("benchmarks", len(r.Result.Benchmarks)).
			Str("duration", r.Result.ProcessingDuration).
			Msg("Document processed")
	}
}

func statusLabel(status string) string {
	switch status {
	case pipeline.StatusSuccess:
		return "OK"
	case pipeline.StatusDegraded:
		return "DEGRADED"
	case pipeline.StatusError:
		return "ERROR"
	default:
		return "?"
	}
}

func writeWorkbook(path string, entries []export.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	if err := export.NewWriter().WriteXLSX(f, entries); err != nil {
		f.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return f.Close()
}
