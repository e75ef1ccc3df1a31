package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"medparse/internal/pipeline"
	"medparse/pkg/models"
)

func labs(n, auto int) *models.ExtractedMedicalData {
	data := &models.ExtractedMedicalData{}
	for i := 0; i < n; i++ {
		data.LabValues = append(data.LabValues, models.LabValue{Parameter: "x", AutoDetected: i < auto})
	}
	return data
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		quality  float64
		data     *models.ExtractedMedicalData
		want     float64
	}{
		{"two labs", 0.90, 1.0, labs(2, 0), 0.92},
		{"item bonus capped", 0.90, 1.0, labs(10, 0), 0.95},
		{"auto detected penalty", 0.90, 1.0, labs(10, 10), 0.85},
		{"floor with data", 0.50, 0.0, labs(1, 0), 0.60},
		{"no data", 0.80, 0.5, &models.ExtractedMedicalData{}, 0.24},
		{"quality clamped", 0.50, 2.0, &models.ExtractedMedicalData{}, 0.30},
		{"medications count as data", 0.75, 1.0, &models.ExtractedMedicalData{
			Medications: []models.Medication{{Name: "Metformin"}},
		}, 0.76},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, pipeline.Confidence(tt.baseline, tt.quality, tt.data), 1e-9)
		})
	}
}
