package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"medparse/internal/logger"
)

// OCR engine names
const (
	OCREngineTesseract    = "tesseract"
	OCREngineGoogleVision = "google-vision"
	OCREngineDocumentAI   = "document-ai"
	OCREngineNone         = "none"
)

// Text analyzer names used by the confidence gate
const (
	AnalyzerHeuristic = "heuristic"
	AnalyzerOpenAI    = "openai"
)

type Config struct {
	// OCR Configuration
	OCREngine         string `mapstructure:"OCR_ENGINE"`
	OCRWorkers        int    `mapstructure:"OCR_WORKERS"`
	OCRTimeoutSeconds int    `mapstructure:"OCR_TIMEOUT_SECONDS"`
	TesseractPath     string `mapstructure:"TESSERACT_PATH"`
	TesseractLang     string `mapstructure:"TESSERACT_LANG"`
	PdftoppmPath      string `mapstructure:"PDFTOPPM_PATH"`
	OCRDPI            int    `mapstructure:"OCR_DPI"`

	// Google Cloud Configuration
	GoogleCloudProject         string `mapstructure:"GOOGLE_CLOUD_PROJECT"`
	GoogleCloudLocation        string `mapstructure:"GOOGLE_CLOUD_LOCATION"`
	DocumentAIProcessorID      string `mapstructure:"DOCUMENT_AI_PROCESSOR_ID"`
	DocumentAIProcessorVersion string `mapstructure:"DOCUMENT_AI_PROCESSOR_VERSION"`

	// Google Sheets Configuration
	GoogleSheetURL       string `mapstructure:"GOOGLE_SHEET_URL"`
	GoogleSheetWorksheet string `mapstructure:"GOOGLE_SHEET_WORKSHEET"`

	// Enhanced text analysis
	Analyzer     string `mapstructure:"ANALYZER"`
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL"`

	// Pipeline Configuration
	RulesFile           string  `mapstructure:"RULES_FILE"`
	ReferenceFile       string  `mapstructure:"REFERENCE_FILE"`
	DefaultRegion       string  `mapstructure:"DEFAULT_REGION"`
	ConfidenceThreshold float64 `mapstructure:"CONFIDENCE_THRESHOLD"`
	BatchWorkers        int     `mapstructure:"BATCH_WORKERS"`

	// HTTP Server Configuration
	ServerAddr  string `mapstructure:"SERVER_ADDR"`
	MaxUploadMB int    `mapstructure:"MAX_UPLOAD_MB"`

	// Logging Configuration
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFormat     string `mapstructure:"LOG_FORMAT"`
	LogTimeFormat string `mapstructure:"LOG_TIME_FORMAT"`
	LogOutput     string `mapstructure:"LOG_OUTPUT"`
}

var defaults = map[string]interface{}{
	"OCR_ENGINE":                    OCREngineTesseract,
	"OCR_WORKERS":                   4,
	"OCR_TIMEOUT_SECONDS":           60,
	"TESSERACT_PATH":                "tesseract",
	"TESSERACT_LANG":                "eng",
	"PDFTOPPM_PATH":                 "pdftoppm",
	"OCR_DPI":                       300,
	"GOOGLE_CLOUD_PROJECT":          "",
	"GOOGLE_CLOUD_LOCATION":         "us",
	"DOCUMENT_AI_PROCESSOR_ID":      "",
	"DOCUMENT_AI_PROCESSOR_VERSION": "",
	"GOOGLE_SHEET_URL":              "",
	"GOOGLE_SHEET_WORKSHEET":        "Results",
	"ANALYZER":                      AnalyzerHeuristic,
	"OPENAI_API_KEY":                "",
	"OPENAI_MODEL":                  "gpt-4o-mini",
	"RULES_FILE":                    "",
	"REFERENCE_FILE":                "",
	"DEFAULT_REGION":                "IN",
	"CONFIDENCE_THRESHOLD":          0.70,
	"BATCH_WORKERS":                 0,
	"SERVER_ADDR":                   ":8080",
	"MAX_UPLOAD_MB":                 20,
	"LOG_LEVEL":                     "info",
	"LOG_FORMAT":                    "console",
	"LOG_TIME_FORMAT":               "2006-01-02T15:04:05Z07:00",
	"LOG_OUTPUT":                    "stdout",
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind env vars explicitly so Unmarshal picks them up
		_ = v.BindEnv(key)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	config.OCREngine = strings.ToLower(strings.TrimSpace(config.OCREngine))
	config.Analyzer = strings.ToLower(strings.TrimSpace(config.Analyzer))
	config.DefaultRegion = strings.ToUpper(strings.TrimSpace(config.DefaultRegion))

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCREngine {
	case OCREngineTesseract, OCREngineNone:
	case OCREngineGoogleVision:
	case OCREngineDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the document-ai OCR engine")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the document-ai OCR engine")
		}
	default:
		return fmt.Errorf("unknown OCR_ENGINE %q", c.OCREngine)
	}

	switch c.Analyzer {
	case AnalyzerHeuristic:
	case AnalyzerOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when ANALYZER is openai")
		}
	default:
		return fmt.Errorf("unknown ANALYZER %q", c.Analyzer)
	}

	if c.OCRWorkers < 1 {
		return fmt.Errorf("OCR_WORKERS must be at least 1")
	}
	if c.OCRTimeoutSeconds < 1 {
		return fmt.Errorf("OCR_TIMEOUT_SECONDS must be at least 1")
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0, 1]")
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be at least 1")
	}
	return nil
}

// OCRTimeout is the bound on a single OCR acquisition and recognition.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

// Workers returns the batch worker count, defaulting to the OCR slot count.
func (c *Config) Workers() int {
	if c.BatchWorkers > 0 {
		return c.BatchWorkers
	}
	return c.OCRWorkers
}

// MaxUploadBytes is the HTTP upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
