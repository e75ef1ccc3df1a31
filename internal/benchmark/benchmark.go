// Package benchmark compares extracted lab values with population reference
// data: the percentile within the patient's age and gender cohort, the
// distance from a disease cohort and the classification against a regional
// reference range.
//
// Reference data comes from an embedded YAML file that can be replaced at
// startup. Parameters without reference data are skipped silently.
package benchmark

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

// Benchmark statuses
const (
	StatusNormal     = "normal"
	StatusBorderline = "borderline"
	StatusAbnormal   = "abnormal"
	StatusCritical   = "critical"
)

// Disease cohort positions
const (
	PositionBelow  = "below"
	PositionWithin = "within"
	PositionAbove  = "above"
)

const traceSource = "benchmark"

// ClassifyBenchmarkStatus classifies v against r.
//
//	critical    v < 0.7·min or v > 1.5·max
//	abnormal    v outside [min, max]
//	borderline  v ≤ 1.1·min or v ≥ 0.9·max
//	normal      otherwise
func ClassifyBenchmarkStatus(v float64, r models.ReferenceRange) string {
	switch {
	case v < 0.7*r.Min || v > 1.5*r.Max:
		return StatusCritical
	case v < r.Min || v > r.Max:
		return StatusAbnormal
	case v <= 1.1*r.Min || v >= 0.9*r.Max:
		return StatusBorderline
	default:
		return StatusNormal
	}
}

// Percentile is the normal-distribution percentile of v, rounded to one
// decimal.
func Percentile(v, mean, sd float64) float64 {
	if sd <= 0 {
		return 50
	}
	z := (v - mean) / sd
	p := 50 * (1 + math.Erf(z/math.Sqrt2))
	return math.Round(p*10) / 10
}

// Engine benchmarks lab values against a Referencer.
type Engine struct {
	refs   Referencer
	region string
	log    zerolog.Logger
}

// NewEngine creates an engine. defaultRegion applies when the caller does
// not name a region.
func NewEngine(refs Referencer, defaultRegion string) *Engine {
	return &Engine{
		refs:   refs,
		region: strings.ToUpper(strings.TrimSpace(defaultRegion)),
		log:    logger.WithComponent("benchmark"),
	}
}

// QueryFor builds the lookup query from caller context, falling back to the
// demographics read from the document.
func (e *Engine) QueryFor(data *models.ExtractedMedicalData, patient *models.PatientContext) Query {
	var q Query
	if patient != nil {
		q = Query{Age: patient.Age, Gender: patient.Gender, Region: patient.Region}
	}
	if data != nil && data.Patient != nil {
		if q.Age == 0 {
			q.Age = data.Patient.Age
		}
		if q.Gender == "" {
			q.Gender = data.Patient.Gender
		}
	}
	if q.Region == "" {
		q.Region = e.region
	}
	q.Region = strings.ToUpper(strings.TrimSpace(q.Region))
	return q
}

// Benchmark produces one record per lab value that has reference data, and
// a traceability record for each.
func (e *Engine) Benchmark(data *models.ExtractedMedicalData, patient *models.PatientContext) ([]models.BenchmarkRecord, []models.TraceabilityRecord) {
	if data == nil || len(data.LabValues) == 0 {
		return nil, nil
	}

	q := e.QueryFor(data, patient)

	var (
		records []models.BenchmarkRecord
		trace   []models.TraceabilityRecord
	)
	for _, lab := range data.LabValues {
		ref, ok := e.refs.Lookup(lab.Parameter, q)
		if !ok {
			e.log.Debug().
				Str("parameter", lab.Parameter).
				Msg("No reference data for parameter")
			continue
		}

		record, err := e.benchmarkValue(lab, ref, data.Diagnoses)
		if err != nil {
			e.log.Debug().
				Err(err).
				Str("parameter", lab.Parameter).
				Msg("Skipping benchmark")
			continue
		}
		records = append(records, record)
		trace = append(trace, models.TraceabilityRecord{
			Claim: fmt.Sprintf("%s %g %s at percentile %g of %s (%s)",
				record.Parameter, record.PatientValue, record.Unit, record.Percentile, ref.Dataset, record.AgeGroup),
			Source:            traceSource,
			Confidence:        lab.Confidence,
			ReferenceDatabase: ref.Dataset,
			ReferenceVersion:  ref.Version,
			RecordedAt:        time.Now().UTC(),
		})
	}

	e.log.Debug().
		Int("lab_values", len(data.LabValues)).
		Int("benchmarked", len(records)).
		Str("region", q.Region).
		Msg("Benchmarking completed")

	return records, trace
}

func (e *Engine) benchmarkValue(lab models.LabValue, ref *Reference, diagnoses []models.Diagnosis) (models.BenchmarkRecord, error) {
	v, err := ref.Convert(lab.Value, lab.Unit)
	if err != nil {
		return models.BenchmarkRecord{}, err
	}
	if v != lab.Value {
		v = math.Round(v*100) / 100
	}

	record := models.BenchmarkRecord{
		Parameter:    ref.Parameter,
		PatientValue: v,
		Unit:         ref.Unit,
		Percentile:   Percentile(v, ref.Cohort.Mean, ref.Cohort.SD),
		AgeGroup:     ref.Cohort.Label(),
		AgeGroupMean: ref.Cohort.Mean,
		Dataset:      ref.Dataset,
	}

	if dc, ok := pickDisease(ref.Diseases, diagnoses); ok {
		diff := math.Round((v-dc.Mean)*100) / 100
		position := PositionWithin
		switch {
		case v < dc.Mean-dc.SD:
			position = PositionBelow
		case v > dc.Mean+dc.SD:
			position = PositionAbove
		}
		record.DiseaseComparison = &models.DiseaseComparison{
			Disease:    dc.Disease,
			CohortMean: dc.Mean,
			CohortSD:   dc.SD,
			Difference: diff,
			Position:   position,
		}
	}

	if ref.Regional != nil {
		rng := ref.Regional.Range.toRange()
		record.RegionalStandard = &models.RegionalStandard{
			Region:         ref.Regional.Region,
			Source:         ref.Regional.Source,
			Range:          rng,
			Classification: ClassifyBenchmarkStatus(v, rng),
		}
	}

	switch {
	case lab.ReferenceRange.Valid():
		record.Status = ClassifyBenchmarkStatus(lab.Value, lab.ReferenceRange)
	case record.RegionalStandard != nil:
		record.Status = record.RegionalStandard.Classification
	default:
		record.Status = ClassifyBenchmarkStatus(v, models.ReferenceRange{
			Min: ref.Cohort.Mean - 2*ref.Cohort.SD,
			Max: ref.Cohort.Mean + 2*ref.Cohort.SD,
		})
	}

	return record, nil
}

// pickDisease prefers a cohort named by one of the diagnoses and otherwise
// returns the first listed cohort.
func pickDisease(cohorts []DiseaseCohort, diagnoses []models.Diagnosis) (DiseaseCohort, bool) {
	if len(cohorts) == 0 {
		return DiseaseCohort{}, false
	}
	for _, dx := range diagnoses {
		cond := strings.ToLower(dx.Condition)
		if cond == "" {
			continue
		}
		for _, c := range cohorts {
			name := strings.ToLower(c.Disease)
			if name == cond || strings.Contains(cond, name) || strings.Contains(name, cond) {
				return c, true
			}
		}
	}
	return cohorts[0], true
}
