package acquisition

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"medparse/pkg/models"
)

// FallbackReason names why the chain ended in placeholder text.
type FallbackReason string

const (
	ReasonEmptyInput   FallbackReason = "the document is empty"
	ReasonNoTextLayer  FallbackReason = "the PDF has no usable text layer"
	ReasonOCRFailed    FallbackReason = "text recognition failed"
	ReasonOCREmpty     FallbackReason = "text recognition returned no usable text"
	ReasonOCRSkipped   FallbackReason = "the document has no recognizable image content"
	ReasonOfficeDecode FallbackReason = "the office document could not be decoded"
	ReasonOCRDisabled  FallbackReason = "no text recognition engine is configured"
	ReasonCanceled     FallbackReason = "processing was canceled"
)

var labBrands = map[string]string{
	"lalpath":     "Dr Lal PathLabs",
	"lalpathlabs": "Dr Lal PathLabs",
	"thyrocare":   "Thyrocare",
	"metropolis":  "Metropolis",
	"srl":         "SRL Diagnostics",
	"apollo":      "Apollo Diagnostics",
	"redcliffe":   "Redcliffe Labs",
	"quest":       "Quest Diagnostics",
	"labcorp":     "Labcorp",
}

var panelKeywords = []struct {
	words []string
	panel string
}{
	{[]string{"glucose", "sugar", "fbs", "ppbs", "rbs", "hba1c", "diabetes", "diabetic"}, "Glycemic panel"},
	{[]string{"lipid", "cholesterol", "hdl", "ldl", "triglyceride", "triglycerides"}, "Lipid profile"},
	{[]string{"cbc", "hemogram", "haemogram", "hemoglobin", "haemoglobin", "blood"}, "Complete blood count"},
	{[]string{"thyroid", "tsh", "t3", "t4"}, "Thyroid profile"},
	{[]string{"kft", "rft", "kidney", "renal", "creatinine", "urea"}, "Kidney function tests"},
	{[]string{"lft", "liver", "sgpt", "sgot", "bilirubin"}, "Liver function tests"},
	{[]string{"vitamin", "vitd", "b12"}, "Vitamin panel"},
	{[]string{"urine", "urinalysis"}, "Urine examination"},
	{[]string{"prescription", "rx"}, "Prescription"},
	{[]string{"discharge", "summary", "ehr", "emr"}, "Clinical summary"},
}

var (
	reFilenameToken = regexp.MustCompile(`[a-z0-9]+`)
	reDigits        = regexp.MustCompile(`[0-9]+`)
)

// IntelligentFallback builds an explicitly labeled placeholder report from
// filename keywords. It never fails and never contains numeric values.
func IntelligentFallback(filename string, reason FallbackReason, warnings []string) *models.AcquiredText {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	tokens := reFilenameToken.FindAllString(strings.ToLower(base), -1)

	var brand string
	panels := map[string]bool{}
	for _, tok := range tokens {
		if b, ok := labBrands[tok]; ok && brand == "" {
			brand = b
		}
		for _, pk := range panelKeywords {
			for _, w := range pk.words {
				if tok == w {
					panels[pk.panel] = true
				}
			}
		}
	}

	var b strings.Builder
	b.WriteString("[AUTO-GENERATED PLACEHOLDER - NOT EXTRACTED FROM DOCUMENT]\n")
	if base != "" {
		b.WriteString("Source file: " + reDigits.ReplaceAllString(base, "#") + "\n")
	}
	docType := "Medical document"
	if brand != "" || len(panels) > 0 {
		docType = "Laboratory report"
	}
	if brand != "" {
		docType += " (" + brand + ")"
	}
	b.WriteString("Document type: " + docType + "\n")
	if len(panels) > 0 {
		names := make([]string, 0, len(panels))
		for p := range panels {
			names = append(names, p)
		}
		sort.Strings(names)
		b.WriteString("Suspected panels: " + strings.Join(names, ", ") + "\n")
	}
	b.WriteString("Reason: " + string(reason) + ".\n")
	b.WriteString("Values: not recoverable from source document. Review the original file.")

	return &models.AcquiredText{
		Text:         b.String(),
		QualityScore: FallbackQuality,
		Method:       models.AcquisitionIntelligentFallback,
		Language:     "en",
		Warnings:     append(warnings, "intelligent fallback: "+string(reason)),
	}
}
