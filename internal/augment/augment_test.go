package augment_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"medparse/internal/augment"
	"medparse/pkg/models"
)

func glucoseBenchmark(percentile float64) models.BenchmarkRecord {
	return models.BenchmarkRecord{
		Parameter:    "Glucose Fasting",
		PatientValue: 126,
		Unit:         "mg/dL",
		Percentile:   percentile,
		AgeGroup:     "40-59",
		AgeGroupMean: 97,
		Status:       "abnormal",
		DiseaseComparison: &models.DiseaseComparison{
			Disease: "Type 2 Diabetes Mellitus", CohortMean: 162, CohortSD: 48, Difference: -36, Position: "within",
		},
		RegionalStandard: &models.RegionalStandard{
			Region: "IN", Source: "ICMR 2023", Range: models.ReferenceRange{Min: 70, Max: 100}, Classification: "abnormal",
		},
	}
}

func TestAugment_KeepsOriginalPrefix(t *testing.T) {
	a := augment.New()
	original := "LAB REPORT\nGlucose Fasting: 126 mg/dL (70-100)"

	for _, category := range []models.DocumentCategory{
		models.CategoryStructured, models.CategoryTabular, models.CategoryNarrative, models.CategoryHandwritten,
	} {
		t.Run(string(category), func(t *testing.T) {
			out := a.Augment(original, category, nil, []models.BenchmarkRecord{glucoseBenchmark(99.6)})
			assert.True(t, strings.HasPrefix(out, original+"\n\n"))
			assert.Contains(t, out, "--- AI ANNOTATIONS ---")
			assert.True(t, strings.HasSuffix(out, "--- END AI ANNOTATIONS ---\n"))
		})
	}
}

func TestAugment_NothingToAnnotate(t *testing.T) {
	original := "Patient feels well.\n"
	data := &models.ExtractedMedicalData{
		LabValues: []models.LabValue{{Parameter: "HbA1c", Value: 5.2, Unit: "%", Status: models.StatusNormal}},
	}

	assert.Equal(t, original, augment.New().Augment(original, models.CategoryNarrative, data, nil))
	assert.Equal(t, "", augment.New().Augment("", models.CategoryStructured, nil, nil))
}

func TestAugment_StructuredClinicalNote(t *testing.T) {
	out := augment.New().Augment("DIAGNOSIS: T2DM", models.CategoryStructured, nil, []models.BenchmarkRecord{glucoseBenchmark(99.6)})

	assert.Contains(t, out, "ASSESSMENT NOTES:\n- Glucose Fasting: 126 mg/dL, percentile 99.6 in 40-59 (mean 97); within Type 2 Diabetes Mellitus cohort mean 162; abnormal IN (70-100, ICMR 2023)\n")
	assert.Contains(t, out, "FLAGGED FOR REVIEW:\n- Glucose Fasting 126 mg/dL is above the 90th percentile\n")
}

func TestAugment_TabularTable(t *testing.T) {
	b := glucoseBenchmark(55)
	b.RegionalStandard = nil
	b.DiseaseComparison = nil

	out := augment.New().Augment("Test | Result", models.CategoryTabular, nil, []models.BenchmarkRecord{b})

	assert.Contains(t, out, "Parameter | Value | Benchmark | Regional | Flag\n")
	assert.Contains(t, out, "Glucose Fasting | 126 mg/dL | percentile 55.0 in 40-59 (mean 97) | - | -\n")
	assert.NotContains(t, out, "FLAG ")
}

func TestAugment_LowPercentileAndFlaggedLabs(t *testing.T) {
	b := glucoseBenchmark(4.2)
	b.PatientValue = 75
	data := &models.ExtractedMedicalData{
		LabValues: []models.LabValue{
			{Parameter: "Glucose Fasting", Value: 75, Unit: "mg/dL", Flagged: true, Status: models.StatusBorderline},
			{Parameter: "Vitamin B12", Value: 150, Unit: "pg/mL", ReferenceRange: models.ReferenceRange{Min: 200, Max: 900}, Flagged: true, Status: models.StatusLow},
		},
	}

	out := augment.New().Augment("c/o tiredness", models.CategoryNarrative, data, []models.BenchmarkRecord{b})

	assert.Contains(t, out, "[FLAG] * Glucose Fasting 75 mg/dL: percentile 4.2 in 40-59")
	assert.Contains(t, out, "(below the 10th percentile)\n")
	assert.Contains(t, out, "[FLAG] * Vitamin B12 150 pg/mL: reference 200-900 (status low)\n")
	assert.Equal(t, 1, strings.Count(out, "Glucose Fasting"))
}

func ExampleAugmenter_Augment() {
	out := augment.New().Augment("HbA1c 8.4 %", models.CategoryHandwritten, nil, []models.BenchmarkRecord{{
		Parameter:    "HbA1c",
		PatientValue: 8.4,
		Unit:         "%",
		Percentile:   100,
		AgeGroup:     "all ages",
		AgeGroupMean: 5.4,
	}})
	fmt.Print(out)
	// Output:
	// HbA1c 8.4 %
	//
	// --- AI ANNOTATIONS ---
	// [FLAG] * HbA1c 8.4 %: percentile 100.0 in all ages (mean 5.4) (above the 90th percentile)
	// --- END AI ANNOTATIONS ---
}
