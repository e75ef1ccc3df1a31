package export_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"medparse/internal/export"
	"medparse/pkg/models"
)

func sampleEntries() []export.Entry {
	return []export.Entry{
		{
			Filename: "lab_report.txt",
			Result: &models.ParsingResult{
				ID:            "r-1",
				ParsingMethod: "structured",
				Confidence:    0.87,
				SourceMetadata: models.SourceMetadata{
					Category:          models.CategoryStructured,
					Specialty:         "endocrinology",
					AcquisitionMethod: models.AcquisitionNative,
				},
				ExtractedData: models.ExtractedMedicalData{
					LabValues: []models.LabValue{
						{Parameter: "Glucose Fasting", Code: "1558-6", Value: 126, Unit: "mg/dL",
							ReferenceRange: models.ReferenceRange{Min: 70, Max: 100}, Status: models.StatusHigh, Flagged: true},
						{Parameter: "HbA1c", Value: 5.2, Unit: "%", Status: models.StatusNormal},
					},
					Diagnoses:   []models.Diagnosis{{Condition: "Type 2 Diabetes Mellitus"}},
					Medications: []models.Medication{{Name: "Metformin", Dosage: "500 mg"}},
				},
				Benchmarks: []models.BenchmarkRecord{{
					Parameter:         "Glucose Fasting",
					PatientValue:      126,
					Unit:              "mg/dL",
					Percentile:        99.6,
					AgeGroup:          "40-59",
					Status:            "abnormal",
					Dataset:           "NHANES",
					DiseaseComparison: &models.DiseaseComparison{Disease: "Type 2 Diabetes Mellitus", Position: "below"},
					RegionalStandard:  &models.RegionalStandard{Region: "IN", Range: models.ReferenceRange{Min: 70, Max: 100}, Classification: "abnormal"},
				}},
			},
		},
		{
			Filename: "note.txt",
			Result:   &models.ParsingResult{ID: "r-2", ParsingMethod: models.ParsingMethodEnhancedText, FallbackMethod: true},
		},
		{Filename: "archive.zip", Err: errors.New("unsupported media type")},
	}
}

func TestEntryStatus(t *testing.T) {
	entries := sampleEntries()
	assert.Equal(t, "success", entries[0].Status())
	assert.Equal(t, "degraded", entries[1].Status())
	assert.Equal(t, "error", entries[2].Status())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.NewWriter().WriteXLSX(&buf, sampleEntries()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.SheetResults, export.SheetLabValues, export.SheetBenchmarks}, f.GetSheetList())

	results, err := f.GetRows(export.SheetResults)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "File", results[0][0])
	assert.Equal(t, []string{"lab_report.txt", "r-1", "success", "structured"}, results[1][:4])
	assert.Equal(t, "Type 2 Diabetes Mellitus", results[1][11])
	assert.Equal(t, "Metformin 500 mg", results[1][12])
	assert.Equal(t, "degraded", results[2][2])
	assert.Equal(t, "error", results[3][2])
	assert.Equal(t, "unsupported media type", results[3][13])

	labs, err := f.GetRows(export.SheetLabValues)
	require.NoError(t, err)
	require.Len(t, labs, 3)
	assert.Equal(t, "Glucose Fasting", labs[1][1])
	assert.Equal(t, "70-100", labs[1][5])
	assert.Equal(t, "high", labs[1][6])
	assert.Equal(t, "", labs[2][5])

	benchmarks, err := f.GetRows(export.SheetBenchmarks)
	require.NoError(t, err)
	require.Len(t, benchmarks, 2)
	assert.Equal(t, "40-59", benchmarks[1][5])
	assert.Equal(t, "Type 2 Diabetes Mellitus", benchmarks[1][8])
	assert.Equal(t, "IN", benchmarks[1][10])
	assert.Equal(t, "NHANES", benchmarks[1][13])
}

func TestWorkbook_Empty(t *testing.T) {
	f, err := export.NewWriter().Workbook(nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetBenchmarks)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Parameter", rows[0][1])
}
