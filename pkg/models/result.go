package models

import "time"

// Parsing methods that are not extractor names
const (
	ParsingMethodIntelligentFallback = "intelligent-fallback"
	ParsingMethodEnhancedText        = "enhanced-text-analysis"
)

// DiseaseComparison compares a value against a disease-specific cohort
type DiseaseComparison struct {
	Disease    string  `json:"disease"`
	CohortMean float64 `json:"cohortMean"`
	CohortSD   float64 `json:"cohortSd"`
	Difference float64 `json:"difference"` // PatientValue - CohortMean
	Position   string  `json:"position"`   // below, within, above (±1 SD)
}

// RegionalStandard is a regional reference range and the classification against it
type RegionalStandard struct {
	Region         string         `json:"region"`
	Source         string         `json:"source"`
	Range          ReferenceRange `json:"range"`
	Classification string         `json:"classification"`
}

// BenchmarkRecord enriches one LabValue with population reference data
type BenchmarkRecord struct {
	Parameter         string             `json:"parameter"`
	PatientValue      float64            `json:"patientValue"`
	Unit              string             `json:"unit"`
	Percentile        float64            `json:"percentile"`
	AgeGroup          string             `json:"ageGroup,omitempty"`
	AgeGroupMean      float64            `json:"ageGroupMean,omitempty"`
	Status            string             `json:"status"`
	Dataset           string             `json:"dataset"`
	DiseaseComparison *DiseaseComparison `json:"diseaseComparison,omitempty"`
	RegionalStandard  *RegionalStandard  `json:"regionalStandard,omitempty"`
}

// SourceMetadata describes where a ParsingResult came from
type SourceMetadata struct {
	Filename          string            `json:"filename,omitempty"`
	MediaType         string            `json:"mediaType"`
	Layout            Layout            `json:"layout"`
	Category          DocumentCategory  `json:"category"`
	Quality           float64           `json:"quality"`
	Language          string            `json:"language"`
	Specialty         string            `json:"specialty"`
	AcquisitionMethod AcquisitionMethod `json:"acquisitionMethod"`
	OCREngine         string            `json:"ocrEngine,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// EnhancedAnalysis is the degraded text summary produced by the confidence gate
type EnhancedAnalysis struct {
	Summary      string   `json:"summary"`
	KeyFindings  []string `json:"keyFindings,omitempty"`
	MedicalTerms []string `json:"medicalTerms,omitempty"`
	Analyzer     string   `json:"analyzer"`
	Confidence   float64  `json:"confidence"`
}

// ParsingResult is the terminal artifact of a pipeline run
type ParsingResult struct {
	ID                 string               `json:"id"`
	ExtractedData      ExtractedMedicalData `json:"extractedData"`
	Confidence         float64              `json:"confidence"`
	ParsingMethod      string               `json:"parsingMethod"`
	SourceMetadata     SourceMetadata       `json:"sourceMetadata"`
	Traceability       []TraceabilityRecord `json:"traceability"`
	Benchmarks         []BenchmarkRecord    `json:"benchmarks,omitempty"`
	FallbackMethod     bool                 `json:"fallbackMethod,omitempty"`
	Message            string               `json:"message,omitempty"`
	EnhancedAnalysis   *EnhancedAnalysis    `json:"enhancedAnalysis,omitempty"`
	AugmentedText      string               `json:"augmentedText,omitempty"`
	ProcessedAt        time.Time            `json:"processedAt"`
	ProcessingDuration string               `json:"processingDuration,omitempty"`
}
