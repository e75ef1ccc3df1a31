package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"medparse/internal/config"
	"medparse/internal/ocr"
)

// Example demonstrates recognizing a scanned lab report with the configured engine.
func Example() {
	// Load .env file (using godotenv in main)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := ocr.NewPoolFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create OCR pool: %v", err)
	}
	defer pool.Close()

	file, err := os.Open("lab_report.png")
	if err != nil {
		log.Fatalf("Failed to open image: %v", err)
	}
	defer file.Close()

	result, err := pool.Recognize(ctx, file, "image/png")
	if err != nil {
		log.Fatalf("Failed to recognize: %v", err)
	}

	fmt.Printf("OCR Results:\n")
	fmt.Printf("  Engine: %s\n", result.Engine)
	fmt.Printf("  Pages processed: %d\n", result.PageCount)
	fmt.Printf("  Confidence: %.2f%%\n", result.Confidence*100)
	fmt.Printf("  Languages: %s\n", strings.Join(result.LanguageCodes, ", "))
	fmt.Printf("  Processing time: %v\n", result.ProcessingDuration)
	fmt.Printf("\nExtracted text:\n%s\n", result.Text)
}

// ExampleNewGoogleVisionOCRService demonstrates proper error handling patterns.
func ExampleNewGoogleVisionOCRService() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, err := ocr.NewGoogleVisionOCRService(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Fatalf("Please set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")
		}
		log.Fatalf("Failed to create OCR service: %v", err)
	}
	defer svc.Close()

	file, err := os.Open("discharge_summary.pdf")
	if err != nil {
		log.Fatalf("Failed to open PDF: %v", err)
	}
	defer file.Close()

	result, err := svc.Recognize(ctx, file, "application/pdf")
	if err != nil {
		switch {
		case errors.Is(err, ocr.ErrFileTooLarge):
			log.Printf("File is too large for processing. Maximum size is 20MB.")
		case errors.Is(err, ocr.ErrTooManyPages):
			log.Printf("PDF has too many pages. Maximum is 5 pages for synchronous processing.")
		case errors.Is(err, ocr.ErrInvalidPDF):
			log.Printf("The file is not a valid PDF document.")
		case errors.Is(err, ocr.ErrEmptyDocument):
			log.Printf("No readable text found in the document.")
		default:
			log.Printf("OCR processing failed: %v", err)
		}
		return
	}

	fmt.Printf("Successfully processed %d pages\n", result.PageCount)
}

// ExamplePool_WithWorker demonstrates running several engine calls inside one slot.
func ExamplePool_WithWorker() {
	pool := ocr.NewPool(ocr.NewNoneOCRService(), 2, 5*time.Second)

	err := pool.WithWorker(context.Background(), func(ctx context.Context, svc ocr.OCRService) error {
		_, err := svc.Recognize(ctx, strings.NewReader("image"), "image/png")
		return err
	})
	fmt.Println(errors.Is(err, ocr.ErrOCRUnavailable))
	// Output: true
}
