package extractor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

const maxDiagnosisItemLen = 80

// Structured extracts from reports organized under section headers.
type Structured struct {
	n   *normalizer.Normalizer
	lex *Lexicon
	log zerolog.Logger
}

// NewStructured creates the structured strategy.
func NewStructured(n *normalizer.Normalizer, lex *Lexicon) *Structured {
	return &Structured{n: n, lex: lex, log: logger.WithComponent("extractor.structured")}
}

// Name implements Extractor.
func (s *Structured) Name() string { return NameStructured }

// Extract implements Extractor.
func (s *Structured) Extract(text string) Outcome {
	sections := segmentSections(text)
	findings := s.lex.scanFindings(text, NameStructured)

	data := models.ExtractedMedicalData{
		LabValues:       s.n.Extract(text),
		TestResults:     s.n.ExtractTestResults(text),
		Symptoms:        findings.symptoms,
		NegatedFindings: findings.negated,
		Patient:         extractPatient(text),
	}
	if hasNamedSection(sections) {
		data.Sections = sections
	}

	negated := map[string]bool{}
	for _, f := range findings.negated {
		negated[f.Term] = true
	}

	if body, ok := sections[SectionDiagnosis]; ok {
		diagnoses, neg := s.diagnosisSection(body)
		for _, f := range neg {
			if !negated[f.Term] {
				negated[f.Term] = true
				data.NegatedFindings = append(data.NegatedFindings, f)
			}
		}
		data.Diagnoses = diagnoses
	} else {
		data.Diagnoses = findings.diagnoses
	}
	data.Diagnoses = dropNegatedDiagnoses(data.Diagnoses, negated)

	if body, ok := sections[SectionTreatment]; ok {
		for _, line := range sectionLines(body) {
			if med, ok := s.lex.parseMedicationLine(line); ok {
				data.Medications = append(data.Medications, med)
			}
		}
	}
	if len(data.Medications) == 0 {
		data.Medications = findings.medications
	}

	if body, ok := sections[SectionRecommendations]; ok {
		data.Recommendations = sectionLines(body)
	}

	t := newTrail(NameStructured, s.n)
	if data.Sections != nil {
		keys := make([]string, 0, len(sections))
		for k := range sections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t.add(fmt.Sprintf("sections: %s", strings.Join(keys, ", ")), BaselineStructured)
	}
	t.addData(&data, BaselineStructured)

	s.log.Debug().
		Int("sections", len(sections)).
		Int("lab_values", len(data.LabValues)).
		Int("diagnoses", len(data.Diagnoses)).
		Int("medications", len(data.Medications)).
		Msg("Structured extraction finished")

	return Outcome{Data: data, Confidence: BaselineStructured, Traceability: t.records}
}

// diagnosisSection reads one diagnosis per list item. Lexicon terms are
// canonicalized; other short items are kept as written unless negated.
func (s *Structured) diagnosisSection(body string) ([]models.Diagnosis, []models.Finding) {
	var diagnoses []models.Diagnosis
	var negated []models.Finding
	seen := map[string]bool{}

	add := func(condition string) {
		key := strings.ToLower(condition)
		if seen[key] {
			return
		}
		seen[key] = true
		diagnoses = append(diagnoses, models.Diagnosis{Condition: condition, Source: SectionDiagnosis})
	}

	items := strings.FieldsFunc(body, func(r rune) bool { return r == '\n' || r == ',' || r == ';' })
	for _, item := range items {
		item = strings.TrimSpace(reBullet.ReplaceAllString(item, ""))
		item = strings.TrimRight(item, ". ")
		if item == "" {
			continue
		}

		hits := s.lex.findTerms(item, KindCondition)
		if len(hits) == 0 {
			if s.lex.negPre.MatchString(item) || len(item) > maxDiagnosisItemLen || !isASCIILetter(item[0]) {
				continue
			}
			add(item)
			continue
		}
		for _, h := range hits {
			if s.lex.isNegated(item, h) {
				negated = append(negated, models.Finding{Term: h.name, Kind: h.kind, Negated: true, Sentence: item})
				continue
			}
			add(h.name)
		}
	}
	return diagnoses, negated
}
