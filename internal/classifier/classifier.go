// Package classifier assigns an extraction strategy, a layout and a medical
// specialty to acquired text. Classification is a pure function of its
// inputs: the same text and metadata always give the same result.
package classifier

import (
	"regexp"
	"strings"

	"medparse/pkg/models"
)

// Metadata is the document context the classifier may consult besides the
// text itself.
type Metadata struct {
	MediaType string
	Filename  string
}

const (
	// minTabularRows is the number of delimited rows that makes a table.
	minTabularRows = 3
	// minTabularShare is the share of non-empty lines that must be delimited.
	minTabularShare = 0.4
	// minNarrativeMarkers is the number of distinct section markers for narrative text.
	minNarrativeMarkers = 2
	// minHandwritingHits is the number of shorthand indicators for handwriting.
	minHandwritingHits = 2
)

var (
	reHandwrittenWord  = regexp.MustCompile(`(?i)\b(hand[- ]?written|handwriting|illegible)\b`)
	reHandwritingToken = regexp.MustCompile(`^(rx|℞|tab\.|cap\.|syp\.|inj\.|sig:|c/o|k/c/o|h/o|o/e|adv[.:]{1,2}|b\.?d\.?|t\.?d\.?s\.?|o\.?d\.?|h\.?s\.?|s\.?o\.?s\.?|q\.?i\.?d\.?)$`)
	reFilenameHand     = regexp.MustCompile(`(?i)(hand[-_ ]?written|handwriting|rx|prescription|scribble)`)

	reNarrativeMarker = regexp.MustCompile(`(?im)^[ \t]*(history of present illness|history|past medical history|chief complaints?|presenting complaints?|examination|physical examination|impression|assessment|plan|hospital course|discharge summary)\b`)

	reLabMarker = regexp.MustCompile(`(?i)\b(laboratory|pathology|pathlabs?|diagnostics|specimen|sample collected|reference (range|interval)|biological reference|test name|investigation|nabl)\b`)
	reEHRMarker = regexp.MustCompile(`(?i)\b(mrn|encounter|patient portal|electronic health record|ehr|emr|printed (on|by)|visit date|attending physician|admission date|discharge date)\b`)
	reScanHint  = regexp.MustCompile(`(?i)scanned pdf`)

	reCSVRow = regexp.MustCompile(`^[^,]+(,[^,]*){2,}$`)
)

// specialtyOrder breaks ties between specialties with the same score.
var specialtyOrder = []string{"cardiology", "endocrinology", "nephrology", "hematology"}

var specialtyKeywords = map[string]*regexp.Regexp{
	"cardiology":    regexp.MustCompile(`(?i)\b(cardiac|cardiology|heart|ecg|ekg|echo(cardiogram)?|troponin|ck-mb|angina|myocardial|hypertension|ldl|hdl|cholesterol|triglycerides?|lipid)\b`),
	"endocrinology": regexp.MustCompile(`(?i)\b(diabet(es|ic)|glucose|hba1c|insulin|thyroid|tsh|t3|t4|metformin|endocrin\w*|hypothyroidism|hyperthyroidism)\b`),
	"nephrology":    regexp.MustCompile(`(?i)\b(kidney|renal|nephro\w*|creatinine|urea|bun|egfr|dialysis|proteinuria|uric acid|kft|rft)\b`),
	"hematology":    regexp.MustCompile(`(?i)\b(hemoglobin|haemoglobin|hb|cbc|platelets?|wbc|rbc|anemia|anaemia|hematology|haematology|esr|mcv|mch|leukocyte|leucocyte)\b`),
}

// Classify returns the deterministic classification of acquired text.
func Classify(text *models.AcquiredText, meta Metadata) models.DocumentClassification {
	category := classifyCategory(text, meta)
	return models.DocumentClassification{
		Category:  category,
		Layout:    detectLayout(text, meta, category),
		Specialty: DetectSpecialty(text.Text),
	}
}

func classifyCategory(text *models.AcquiredText, meta Metadata) models.DocumentCategory {
	switch {
	case isHandwritten(text, meta):
		return models.CategoryHandwritten
	case isTabular(text.Text):
		return models.CategoryTabular
	case narrativeMarkers(text.Text) >= minNarrativeMarkers:
		return models.CategoryNarrative
	default:
		return models.CategoryStructured
	}
}

// isHandwritten looks for prescription shorthand. Typed documents need an
// explicit mention or a filename hint, OCR output only the shorthand.
func isHandwritten(text *models.AcquiredText, meta Metadata) bool {
	if reHandwrittenWord.MatchString(text.Text) {
		return true
	}
	hits := shorthandTokens(text.Text)
	if reFilenameHand.MatchString(meta.Filename) {
		return hits >= 1
	}
	return text.Method == models.AcquisitionOCR && hits >= minHandwritingHits
}

func shorthandTokens(text string) int {
	hits := 0
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if reHandwritingToken.MatchString(strings.TrimRight(tok, ",;)")) {
			hits++
		}
	}
	return hits
}

// isTabular measures delimiter density: pipe, tab and CSV rows.
func isTabular(text string) bool {
	var lines, delimited int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		if isDelimitedRow(line) {
			delimited++
		}
	}
	if lines == 0 || delimited < minTabularRows {
		return false
	}
	return float64(delimited)/float64(lines) >= minTabularShare
}

func isDelimitedRow(line string) bool {
	switch {
	case strings.Count(line, "|") >= 2:
		return true
	case strings.Count(line, "\t") >= 2:
		return true
	default:
		return reCSVRow.MatchString(line)
	}
}

func narrativeMarkers(text string) int {
	seen := map[string]bool{}
	for _, m := range reNarrativeMarker.FindAllStringSubmatch(text, -1) {
		seen[strings.ToLower(m[1])] = true
	}
	return len(seen)
}

func detectLayout(text *models.AcquiredText, meta Metadata, category models.DocumentCategory) models.Layout {
	if category == models.CategoryHandwritten {
		return models.LayoutHandwrittenNote
	}

	scanned := text.Method == models.AcquisitionOCR
	for _, w := range text.Warnings {
		if reScanHint.MatchString(w) {
			scanned = true
		}
	}
	lab := reLabMarker.MatchString(text.Text)
	ehr := reEHRMarker.MatchString(text.Text)

	switch {
	case ehr && !scanned:
		return models.LayoutEHRPrintout
	case lab && !scanned && models.BaseMediaType(meta.MediaType) == models.MediaTypePDF:
		return models.LayoutLabPDF
	case scanned:
		return models.LayoutScan
	case category == models.CategoryNarrative:
		return models.LayoutEHRPrintout
	default:
		return models.LayoutLabPDF
	}
}

// DetectSpecialty returns the specialty with the most keyword hits, or
// "general" when none match.
func DetectSpecialty(text string) string {
	best, bestHits := "general", 0
	for _, name := range specialtyOrder {
		hits := len(specialtyKeywords[name].FindAllStringIndex(text, -1))
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best
}
