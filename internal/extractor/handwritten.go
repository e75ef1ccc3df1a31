package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"medparse/internal/classifier"
	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

// Handwritten output is capped; recognition of handwriting is simulated on
// top of OCR text and its baseline confidence is optimistic.
const (
	maxHandwrittenLabs        = 5
	maxHandwrittenMedications = 5
	maxHandwrittenDiagnoses   = 3
)

var (
	reGlyphRun = regexp.MustCompile(`\b([0-9OoIlS]+(?:\.[0-9OoIlS]+)?)\b([ \t]*(?i:mg/dl|mmol/l|mcg|mg|ml|iu|units?|%))?`)
	reRxPrefix = regexp.MustCompile(`(?i)^[ \t]*(?:rx|℞)[ \t]*[.:\-]?[ \t]*`)
	reAdvice   = regexp.MustCompile(`(?i)^[ \t]*(?:adv(?:ice|ised)?|f/u|follow[- ]?up|review)[ \t]*[.:\-]?[ \t]*(.+)$`)

	glyphDigits = strings.NewReplacer("O", "0", "o", "0", "I", "1", "l", "1", "S", "5")
)

// Handwritten extracts from OCR text of handwritten notes and prescriptions.
type Handwritten struct {
	n   *normalizer.Normalizer
	lex *Lexicon
	log zerolog.Logger
}

// NewHandwritten creates the handwritten strategy.
func NewHandwritten(n *normalizer.Normalizer, lex *Lexicon) *Handwritten {
	return &Handwritten{n: n, lex: lex, log: logger.WithComponent("extractor.handwritten")}
}

// Name implements Extractor.
func (h *Handwritten) Name() string { return NameHandwritten }

// Extract implements Extractor.
func (h *Handwritten) Extract(text string) Outcome {
	repaired, fixes := RepairGlyphs(text)
	findings := h.lex.scanFindings(repaired, NameHandwritten)

	data := models.ExtractedMedicalData{
		LabValues:       capSlice(h.n.Extract(repaired), maxHandwrittenLabs),
		TestResults:     h.n.ExtractTestResults(repaired),
		Diagnoses:       capSlice(findings.diagnoses, maxHandwrittenDiagnoses),
		Symptoms:        findings.symptoms,
		NegatedFindings: findings.negated,
		Patient:         extractPatient(repaired),
	}

	seen := map[string]bool{}
	for _, line := range strings.Split(repaired, "\n") {
		if m := reAdvice.FindStringSubmatch(line); m != nil {
			data.Recommendations = append(data.Recommendations, strings.TrimSpace(m[1]))
			continue
		}
		line = reRxPrefix.ReplaceAllString(line, "")
		stripped := reBullet.ReplaceAllString(line, "")
		if !reForm.MatchString(stripped) {
			if _, isLab := h.n.Lookup(line); isLab {
				continue
			}
		}
		med, ok := h.lex.parseMedicationLine(line)
		if !ok || seen[strings.ToLower(med.Name)] {
			continue
		}
		seen[strings.ToLower(med.Name)] = true
		data.Medications = append(data.Medications, med)
	}
	if len(data.Medications) == 0 {
		data.Medications = findings.medications
	}
	data.Medications = capSlice(data.Medications, maxHandwrittenMedications)

	specialty := classifier.DetectSpecialty(repaired)

	t := newTrail(NameHandwritten, h.n)
	t.add(fmt.Sprintf("handwriting recognition is simulated; baseline %.2f is optimistic", BaselineHandwritten), BaselineHandwritten)
	t.add("specialty: "+specialty, BaselineHandwritten)
	if fixes > 0 {
		t.add(fmt.Sprintf("%d numeric glyph repairs", fixes), BaselineHandwritten)
	}
	t.addData(&data, BaselineHandwritten)

	h.log.Debug().
		Int("glyph_fixes", fixes).
		Str("specialty", specialty).
		Int("medications", len(data.Medications)).
		Int("lab_values", len(data.LabValues)).
		Msg("Handwritten extraction finished")

	return Outcome{Data: data, Confidence: BaselineHandwritten, Traceability: t.records}
}

// RepairGlyphs replaces letters misread for digits inside numbers:
// O and o become 0, I and l become 1, S becomes 5. A run is repaired when it
// already contains a digit or is followed by a dose or lab unit. It returns
// the repaired text and the number of runs changed.
func RepairGlyphs(text string) (string, int) {
	var b strings.Builder
	fixes, last := 0, 0
	for _, m := range reGlyphRun.FindAllStringSubmatchIndex(text, -1) {
		run := text[m[2]:m[3]]
		hasDigit := strings.ContainsAny(run, "0123456789")
		hasUnit := m[4] >= 0 && len(run) >= 2
		if !hasDigit && !hasUnit {
			continue
		}
		fixed := glyphDigits.Replace(run)
		if fixed == run {
			continue
		}
		b.WriteString(text[last:m[2]])
		b.WriteString(fixed)
		last = m[3]
		fixes++
	}
	b.WriteString(text[last:])
	return b.String(), fixes
}

func capSlice[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
