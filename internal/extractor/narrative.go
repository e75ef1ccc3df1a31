package extractor

import (
	"fmt"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

// Narrative extracts entities from clinical prose, with negation and
// temporal passes over every sentence.
type Narrative struct {
	n   *normalizer.Normalizer
	lex *Lexicon
	log zerolog.Logger
}

// NewNarrative creates the narrative strategy.
func NewNarrative(n *normalizer.Normalizer, lex *Lexicon) *Narrative {
	return &Narrative{n: n, lex: lex, log: logger.WithComponent("extractor.narrative")}
}

// Name implements Extractor.
func (x *Narrative) Name() string { return NameNarrative }

// Extract implements Extractor.
func (x *Narrative) Extract(text string) Outcome {
	findings := x.lex.scanFindings(text, NameNarrative)

	data := models.ExtractedMedicalData{
		LabValues:       x.n.Extract(text),
		TestResults:     x.n.ExtractTestResults(text),
		Diagnoses:       findings.diagnoses,
		Medications:     findings.medications,
		Symptoms:        findings.symptoms,
		NegatedFindings: findings.negated,
		TemporalChanges: x.lex.scanTemporal(text, x.labName),
		Patient:         extractPatient(text),
	}
	if sections := segmentSections(text); hasNamedSection(sections) {
		data.Sections = sections
		if body, ok := sections[SectionRecommendations]; ok {
			data.Recommendations = sectionLines(body)
		}
	}

	t := newTrail(NameNarrative, x.n)
	t.addData(&data, BaselineNarrative)
	for _, c := range data.TemporalChanges {
		t.add(fmt.Sprintf("%s %s (%s)", c.Subject, c.Direction, c.TimeReference), BaselineNarrative)
	}

	x.log.Debug().
		Int("diagnoses", len(data.Diagnoses)).
		Int("symptoms", len(data.Symptoms)).
		Int("negated", len(data.NegatedFindings)).
		Int("temporal", len(data.TemporalChanges)).
		Msg("Narrative extraction finished")

	return Outcome{Data: data, Confidence: BaselineNarrative, Traceability: t.records}
}

func (x *Narrative) labName(sentence string) string {
	if rule, ok := x.n.Lookup(sentence); ok {
		return rule.Name
	}
	return ""
}
