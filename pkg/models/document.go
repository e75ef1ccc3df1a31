package models

import "strings"

// Supported media types
const (
	MediaTypePDF   = "application/pdf"
	MediaTypeJPEG  = "image/jpeg"
	MediaTypePNG   = "image/png"
	MediaTypeTIFF  = "image/tiff"
	MediaTypeText  = "text/plain"
	MediaTypeCSV   = "text/csv"
	MediaTypeJSON  = "application/json"
	MediaTypeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeDOC   = "application/msword"
	MediaTypeRTF   = "application/rtf"
	MediaTypeOctet = "application/octet-stream"
)

// AcquisitionMethod tags how the text of a document was obtained
type AcquisitionMethod string

const (
	AcquisitionNative              AcquisitionMethod = "native"
	AcquisitionPDFLayer            AcquisitionMethod = "pdf-layer"
	AcquisitionOCR                 AcquisitionMethod = "ocr"
	AcquisitionIntelligentFallback AcquisitionMethod = "intelligent-fallback"
)

// PatientContext is optional caller-supplied demographic information
type PatientContext struct {
	Age    int    `json:"age,omitempty"`    // Age in years, 0 when unknown
	Gender string `json:"gender,omitempty"` // "male", "female" or empty
	Region string `json:"region,omitempty"` // Regional standard key (e.g. "IN", "US", "EU")
}

// RawDocument is a document payload as received from a caller
type RawDocument struct {
	Content   []byte          // File bytes
	MediaType string          // Declared media type
	Filename  string          // Original filename, used for heuristics only
	Patient   *PatientContext // Optional patient metadata
}

// AcquiredText is the plain text obtained from a RawDocument
type AcquiredText struct {
	Text         string            `json:"text"`
	QualityScore float64           `json:"qualityScore"`
	Method       AcquisitionMethod `json:"acquisitionMethod"`
	Language     string            `json:"language,omitempty"`
	PageCount    int               `json:"pageCount,omitempty"`
	Engine       string            `json:"engine,omitempty"` // OCR engine name when Method is ocr
	Warnings     []string          `json:"warnings,omitempty"`
}

// IsFallback reports whether the text is a generated placeholder
func (a *AcquiredText) IsFallback() bool {
	return a.Method == AcquisitionIntelligentFallback
}

// DocumentCategory selects the extraction strategy
type DocumentCategory string

const (
	CategoryStructured  DocumentCategory = "structured"
	CategoryTabular     DocumentCategory = "tabular"
	CategoryNarrative   DocumentCategory = "narrative"
	CategoryHandwritten DocumentCategory = "handwritten"
)

// Layout describes the visual origin of a document
type Layout string

const (
	LayoutScan            Layout = "scan"
	LayoutEHRPrintout     Layout = "ehr-printout"
	LayoutLabPDF          Layout = "lab-pdf"
	LayoutHandwrittenNote Layout = "handwritten-note"
)

// DocumentClassification is the classifier verdict for an AcquiredText
type DocumentClassification struct {
	Category  DocumentCategory `json:"category"`
	Layout    Layout           `json:"layout"`
	Specialty string           `json:"specialty"`
}

// BaseMediaType strips parameters and lowercases a media type
func BaseMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
