package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"medparse/internal/classifier"
	"medparse/pkg/models"
)

func acquired(text string, method models.AcquisitionMethod) *models.AcquiredText {
	return &models.AcquiredText{Text: text, Method: method, QualityScore: 0.8}
}

func TestClassify_Category(t *testing.T) {
	tests := []struct {
		name   string
		text   *models.AcquiredText
		meta   classifier.Metadata
		want   models.DocumentCategory
		layout models.Layout
	}{
		{
			name: "lab report defaults to structured",
			text: acquired("Dr Lal PathLabs\nTest Name: Glucose Fasting\nGlucose: 95 mg/dL (Normal: 70-110)", models.AcquisitionPDFLayer),
			meta: classifier.Metadata{MediaType: models.MediaTypePDF},
			want: models.CategoryStructured, layout: models.LayoutLabPDF,
		},
		{
			name: "pipe table",
			text: acquired("Test | Result | Unit | Range\nGlucose | 95 | mg/dL | 70-110\nHbA1c | 5.4 | % | 4-5.6\nHDL | 45 | mg/dL | 40-60", models.AcquisitionNative),
			meta: classifier.Metadata{MediaType: models.MediaTypeText},
			want: models.CategoryTabular, layout: models.LayoutLabPDF,
		},
		{
			name: "csv export",
			text: acquired("parameter,value,unit,range\nGlucose,95,mg/dL,70-110\nUrea,30,mg/dL,15-40", models.AcquisitionNative),
			meta: classifier.Metadata{MediaType: models.MediaTypeCSV},
			want: models.CategoryTabular, layout: models.LayoutLabPDF,
		},
		{
			name: "tab separated",
			text: acquired("Test\tResult\tUnit\nGlucose\t95\tmg/dL\nUrea\t30\tmg/dL", models.AcquisitionNative),
			want: models.CategoryTabular, layout: models.LayoutLabPDF,
		},
		{
			name: "clinical narrative",
			text: acquired("Chief Complaint: chest pain for two days.\nHistory: Patient denies fever.\nExamination: BP 130/80.\nImpression: stable angina.\nMRN 12345", models.AcquisitionNative),
			want: models.CategoryNarrative, layout: models.LayoutEHRPrintout,
		},
		{
			name: "explicit handwriting mention",
			text: acquired("Handwritten note\nPt feeling better", models.AcquisitionNative),
			want: models.CategoryHandwritten, layout: models.LayoutHandwrittenNote,
		},
		{
			name: "ocr shorthand",
			text: acquired("Rx\nTab. Metformin 500 mg BD\nc/o fatigue", models.AcquisitionOCR),
			meta: classifier.Metadata{MediaType: models.MediaTypeJPEG},
			want: models.CategoryHandwritten, layout: models.LayoutHandwrittenNote,
		},
		{
			name: "typed medication list is not handwriting",
			text: acquired("Tab. Metformin 500 mg BD\nCap. Omeprazole 20 mg OD", models.AcquisitionNative),
			want: models.CategoryStructured, layout: models.LayoutLabPDF,
		},
		{
			name: "filename hint",
			text: acquired("Tab. Amlodipine 5 mg", models.AcquisitionNative),
			meta: classifier.Metadata{Filename: "prescription_scan.txt"},
			want: models.CategoryHandwritten, layout: models.LayoutHandwrittenNote,
		},
		{
			name: "scanned lab report",
			text: acquired("Hemoglobin 13.5 g/dL\nPlatelets 250", models.AcquisitionOCR),
			meta: classifier.Metadata{MediaType: models.MediaTypePNG},
			want: models.CategoryStructured, layout: models.LayoutScan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.text, tt.meta)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.layout, got.Layout)
		})
	}
}

func TestClassify_ScanWarningSetsLayout(t *testing.T) {
	text := acquired("Creatinine 1.1 mg/dL", models.AcquisitionPDFLayer)
	text.Warnings = []string{"scanned PDF: image content without a usable text layer"}

	got := classifier.Classify(text, classifier.Metadata{MediaType: models.MediaTypePDF})
	assert.Equal(t, models.LayoutScan, got.Layout)
}

func TestClassify_Deterministic(t *testing.T) {
	text := acquired("History: diabetic for 5 years\nExamination: normal\nGlucose 180 mg/dL\nTSH 2.1", models.AcquisitionOCR)
	meta := classifier.Metadata{MediaType: models.MediaTypePDF, Filename: "visit.pdf"}

	first := classifier.Classify(text, meta)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, classifier.Classify(text, meta))
	}
}

func TestDetectSpecialty(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Troponin I elevated, ECG shows ST changes, LDL 190", "cardiology"},
		{"HbA1c 8.2 %, fasting glucose 160, on metformin", "endocrinology"},
		{"Serum creatinine 2.4, urea 80, eGFR 35", "nephrology"},
		{"Hemoglobin 9.1, platelets 120, MCV 70", "hematology"},
		{"Patient feels well", "general"},
		// one hit each: the fixed order breaks the tie
		{"cholesterol and glucose", "cardiology"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifier.DetectSpecialty(tt.text), tt.text)
	}
}
