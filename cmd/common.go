package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medparse/internal/acquisition"
	"medparse/internal/config"
	"medparse/internal/ocr"
	"medparse/internal/pipeline"
	"medparse/pkg/models"
)

// addPatientFlags registers the patient context flags shared by parse and batch.
func addPatientFlags(cmd *cobra.Command) {
	cmd.Flags().Int("age", 0, "Patient age in years (0 = unknown)")
	cmd.Flags().String("gender", "", "Patient gender (male, female)")
	cmd.Flags().String("region", "", "Regional standard for benchmarking (IN, US, EU); defaults to DEFAULT_REGION")
}

// patientFromFlags returns nil when no patient flag is set.
func patientFromFlags(cmd *cobra.Command) (*models.PatientContext, error) {
	age, _ := cmd.Flags().GetInt("age")
	gender, _ := cmd.Flags().GetString("gender")
	region, _ := cmd.Flags().GetString("region")

	gender = strings.ToLower(strings.TrimSpace(gender))
	region = strings.ToUpper(strings.TrimSpace(region))
	if age == 0 && gender == "" && region == "" {
		return nil, nil
	}
	if age < 0 || age > 130 {
		return nil, fmt.Errorf("invalid --age %d", age)
	}

	switch gender {
	case "", "male", "female":
	case "m":
		gender = "male"
	case "f":
		gender = "female"
	default:
		return nil, fmt.Errorf("invalid --gender %q (must be male or female)", gender)
	}

	return &models.PatientContext{Age: age, Gender: gender, Region: region}, nil
}

// loadConfig loads the configuration and reports missing settings in a
// readable form.
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, fmt.Errorf("invalid configuration. Check your environment or .env file:\n\n%w", err)
	}
	return cfg, nil
}

// validateInputFile checks that path is a readable regular file within the
// upload limit. Empty files pass; acquisition gives them fallback text.
func validateInputFile(path string, maxBytes int64, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", path).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if maxBytes > 0 && fileInfo.Size() > maxBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", maxBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (MAX_UPLOAD_MB)",
			fileInfo.Size(), maxBytes)
	}

	return fileInfo, nil
}

// readDocument loads path as a raw document.
func readDocument(path, mediaType string, patient *models.PatientContext) (models.RawDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.RawDocument{}, fmt.Errorf("failed to read file: %w", err)
	}
	return models.RawDocument{
		Content:   content,
		MediaType: mediaType,
		Filename:  path,
		Patient:   patient,
	}, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleProcessingError provides user-friendly error messages for pipeline failures
func handleProcessingError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document processing failed")

	switch {
	case errors.Is(err, acquisition.ErrUnsupportedMediaType):
		return fmt.Errorf("unsupported document type. Supported: PDF, DOCX, DOC, RTF, JPEG, PNG, TIFF, plain text, CSV and JSON: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or OCR_TIMEOUT_SECONDS")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, pipeline.ErrMissingDependency):
		return fmt.Errorf("pipeline is not fully configured: %w", err)
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS, or use OCR_ENGINE=tesseract: %w", err)
	default:
		return fmt.Errorf("processing failed: %w", err)
	}
}
