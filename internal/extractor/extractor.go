// Package extractor turns acquired text into ExtractedMedicalData.
//
// Four strategies share one interface and are selected by document
// category: structured reports, tabular exports, clinical narratives and
// handwritten notes. Each returns the data together with its baseline
// confidence and a traceability trail for the claims it made.
package extractor

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

// Baseline confidence per strategy
const (
	BaselineStructured  = 0.95
	BaselineTabular     = 0.99
	BaselineNarrative   = 0.94
	BaselineHandwritten = 0.96
)

// Strategy names
const (
	NameStructured  = "structured"
	NameTabular     = "tabular"
	NameNarrative   = "narrative"
	NameHandwritten = "handwritten"
)

// Outcome is the result of one extraction
type Outcome struct {
	Data         models.ExtractedMedicalData
	Confidence   float64
	Traceability []models.TraceabilityRecord
}

// Extractor is one extraction strategy
type Extractor interface {
	Name() string
	Extract(text string) Outcome
}

// Set holds one extractor per document category
type Set struct {
	byCategory map[models.DocumentCategory]Extractor
	log        zerolog.Logger
}

// NewSet builds the four strategies over a shared normalizer and lexicon.
func NewSet(n *normalizer.Normalizer, lex *Lexicon) *Set {
	return &Set{
		byCategory: map[models.DocumentCategory]Extractor{
			models.CategoryStructured:  NewStructured(n, lex),
			models.CategoryTabular:     NewTabular(n),
			models.CategoryNarrative:   NewNarrative(n, lex),
			models.CategoryHandwritten: NewHandwritten(n, lex),
		},
		log: logger.WithComponent("extractor"),
	}
}

// NewDefaultSet builds a Set from the embedded rule table and lexicon.
func NewDefaultSet() (*Set, error) {
	const op = "NewDefaultSet"

	n, err := normalizer.NewDefault()
	if err != nil {
		return nil, WrapExtractorError(op, err, "failed to load rule table")
	}
	lex, err := DefaultLexicon()
	if err != nil {
		return nil, err
	}
	return NewSet(n, lex), nil
}

// Select returns the extractor for category. Unknown categories get the
// structured extractor.
func (s *Set) Select(category models.DocumentCategory) Extractor {
	ex, err := s.Lookup(category)
	if err != nil {
		s.log.Warn().
			Err(err).
			Msg("Using structured extractor")
		return s.byCategory[models.CategoryStructured]
	}
	return ex
}

// Lookup is the strict form of Select.
func (s *Set) Lookup(category models.DocumentCategory) (Extractor, error) {
	const op = "Lookup"

	ex, ok := s.byCategory[category]
	if !ok {
		return nil, WrapExtractorError(op, ErrUnknownCategory, string(category))
	}
	return ex, nil
}

// trail collects traceability records for one extraction
type trail struct {
	source  string
	db      string
	version string
	records []models.TraceabilityRecord
}

func newTrail(source string, n *normalizer.Normalizer) *trail {
	return &trail{source: source, db: n.Database(), version: n.Version()}
}

func (t *trail) add(claim string, confidence float64) {
	t.records = append(t.records, models.TraceabilityRecord{
		Claim:             claim,
		Source:            t.source,
		Confidence:        confidence,
		ReferenceDatabase: t.db,
		ReferenceVersion:  t.version,
		RecordedAt:        time.Now().UTC(),
	})
}

func (t *trail) addLab(v models.LabValue) {
	claim := fmt.Sprintf("%s = %g %s (%s)", v.Parameter, v.Value, v.Unit, v.Status)
	if v.Code != "" {
		claim = fmt.Sprintf("%s [LOINC %s] = %g %s (%s)", v.Parameter, v.Code, v.Value, v.Unit, v.Status)
	}
	t.add(claim, v.Confidence)
}

// addData records one claim per extracted item. Lab values use their own
// confidence; everything else uses the strategy baseline.
func (t *trail) addData(d *models.ExtractedMedicalData, baseline float64) {
	for _, v := range d.LabValues {
		t.addLab(v)
	}
	for _, r := range d.TestResults {
		t.add(fmt.Sprintf("test %s: %s", r.Name, r.Result), baseline)
	}
	for _, dx := range d.Diagnoses {
		t.add("diagnosis: "+dx.Condition, baseline)
	}
	for _, m := range d.Medications {
		t.add("medication: "+m.Name, baseline)
	}
	for _, f := range d.NegatedFindings {
		t.add("negated: "+f.Term, baseline)
	}
}
