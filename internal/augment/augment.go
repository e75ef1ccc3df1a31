// Package augment appends benchmark annotations to acquired document text.
// The original text is always kept verbatim as the prefix of the output.
// The annotation block follows the style of the document: a clinical-note
// block for structured documents, a table for tabular ones and a bullet
// list otherwise.
package augment

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

// Percentile bounds outside which a value is flagged.
const (
	HighPercentile = 90.0
	LowPercentile  = 10.0
)

const (
	blockStart = "--- AI ANNOTATIONS ---"
	blockEnd   = "--- END AI ANNOTATIONS ---"
)

type note struct {
	parameter string
	value     string
	summary   string
	regional  string
	flag      string
}

// Augmenter renders annotation blocks.
type Augmenter struct {
	log zerolog.Logger
}

// New creates an Augmenter.
func New() *Augmenter {
	return &Augmenter{log: logger.WithComponent("augment")}
}

// Augment returns original followed by an annotation block for benchmarks
// and for flagged lab values that have no benchmark. When there is nothing
// to annotate original is returned unchanged.
func (a *Augmenter) Augment(original string, category models.DocumentCategory, data *models.ExtractedMedicalData, benchmarks []models.BenchmarkRecord) string {
	notes := collectNotes(data, benchmarks)
	if len(notes) == 0 {
		return original
	}

	var block string
	switch category {
	case models.CategoryStructured:
		block = clinicalNote(notes)
	case models.CategoryTabular:
		block = annotatedTable(notes)
	default:
		block = bullets(notes)
	}

	flagged := 0
	for _, n := range notes {
		if n.flag != "" {
			flagged++
		}
	}
	a.log.Debug().
		Str("category", string(category)).
		Int("notes", len(notes)).
		Int("flagged", flagged).
		Msg("Appended annotations")

	sep := "\n\n"
	if strings.HasSuffix(original, "\n") {
		sep = "\n"
	}
	return original + sep + block
}

func collectNotes(data *models.ExtractedMedicalData, benchmarks []models.BenchmarkRecord) []note {
	var notes []note
	seen := make(map[string]bool, len(benchmarks))

	for _, b := range benchmarks {
		seen[b.Parameter] = true
		n := note{
			parameter: b.Parameter,
			value:     formatValue(b.PatientValue, b.Unit),
			summary:   fmt.Sprintf("percentile %.1f in %s (mean %g)", b.Percentile, b.AgeGroup, b.AgeGroupMean),
		}
		if dc := b.DiseaseComparison; dc != nil {
			n.summary += fmt.Sprintf("; %s %s cohort mean %g", dc.Position, dc.Disease, dc.CohortMean)
		}
		if rs := b.RegionalStandard; rs != nil {
			n.regional = fmt.Sprintf("%s %s (%g-%g, %s)", rs.Classification, rs.Region, rs.Range.Min, rs.Range.Max, rs.Source)
		}
		switch {
		case b.Percentile > HighPercentile:
			n.flag = fmt.Sprintf("above the %gth percentile", HighPercentile)
		case b.Percentile < LowPercentile:
			n.flag = fmt.Sprintf("below the %gth percentile", LowPercentile)
		}
		notes = append(notes, n)
	}

	if data == nil {
		return notes
	}
	for _, lab := range data.LabValues {
		if !lab.Flagged || seen[lab.Parameter] {
			continue
		}
		seen[lab.Parameter] = true
		notes = append(notes, note{
			parameter: lab.Parameter,
			value:     formatValue(lab.Value, lab.Unit),
			summary:   fmt.Sprintf("reference %g-%g", lab.ReferenceRange.Min, lab.ReferenceRange.Max),
			flag:      "status " + string(lab.Status),
		})
	}
	return notes
}

func formatValue(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("%g %s", v, unit)
}

func clinicalNote(notes []note) string {
	var sb strings.Builder
	sb.WriteString(blockStart + "\n")
	sb.WriteString("ASSESSMENT NOTES:\n")
	for _, n := range notes {
		fmt.Fprintf(&sb, "- %s: %s, %s", n.parameter, n.value, n.summary)
		if n.regional != "" {
			fmt.Fprintf(&sb, "; %s", n.regional)
		}
		sb.WriteString("\n")
	}

	var flagged []note
	for _, n := range notes {
		if n.flag != "" {
			flagged = append(flagged, n)
		}
	}
	if len(flagged) > 0 {
		sb.WriteString("FLAGGED FOR REVIEW:\n")
		for _, n := range flagged {
			fmt.Fprintf(&sb, "- %s %s is %s\n", n.parameter, n.value, n.flag)
		}
	}
	sb.WriteString(blockEnd + "\n")
	return sb.String()
}

func annotatedTable(notes []note) string {
	var sb strings.Builder
	sb.WriteString(blockStart + "\n")
	sb.WriteString("Parameter | Value | Benchmark | Regional | Flag\n")
	sb.WriteString("--- | --- | --- | --- | ---\n")
	for _, n := range notes {
		fmt.Fprintf(&sb, "%s | %s | %s | %s | %s\n",
			n.parameter, n.value, n.summary, dash(n.regional), dash(strings.ToUpper(n.flag)))
	}
	sb.WriteString(blockEnd + "\n")
	return sb.String()
}

func bullets(notes []note) string {
	var sb strings.Builder
	sb.WriteString(blockStart + "\n")
	for _, n := range notes {
		line := fmt.Sprintf("* %s %s: %s", n.parameter, n.value, n.summary)
		if n.regional != "" {
			line += "; " + n.regional
		}
		if n.flag != "" {
			line = "[FLAG] " + line + " (" + n.flag + ")"
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString(blockEnd + "\n")
	return sb.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
