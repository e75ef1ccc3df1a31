package normalizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

func newNormalizer(t *testing.T) *normalizer.Normalizer {
	t.Helper()
	n, err := normalizer.NewDefault()
	require.NoError(t, err)
	return n
}

func TestClassifyStatus(t *testing.T) {
	glucose := models.ReferenceRange{Min: 70, Max: 110}

	tests := []struct {
		name  string
		value float64
		want  models.LabStatus
	}{
		{"inside range", 95, models.StatusNormal},
		{"far above range", 220, models.StatusCritical},
		{"near upper bound", 108, models.StatusBorderline},
		{"near lower bound", 75, models.StatusBorderline},
		{"at lower bound", 70, models.StatusBorderline},
		{"below range", 60, models.StatusLow},
		{"far below range", 30, models.StatusCritical},
		{"above range", 150, models.StatusHigh},
		{"at critical ceiling", 165, models.StatusHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizer.ClassifyStatus(tt.value, glucose))
		})
	}
}

func TestClassifyStatus_TotalAndDeterministic(t *testing.T) {
	valid := map[models.LabStatus]bool{
		models.StatusNormal:     true,
		models.StatusLow:        true,
		models.StatusHigh:       true,
		models.StatusCritical:   true,
		models.StatusBorderline: true,
	}
	ranges := []models.ReferenceRange{
		{Min: 70, Max: 110},
		{Min: 0, Max: 200},
		{Min: 0.4, Max: 4.0},
		{Min: -10, Max: 10},
	}

	for _, r := range ranges {
		for v := -500.0; v <= 500.0; v += 0.25 {
			first := normalizer.ClassifyStatus(v, r)
			require.True(t, valid[first], "value %v range %v produced %q", v, r, first)
			require.Equal(t, first, normalizer.ClassifyStatus(v, r))
		}
	}
}

func TestExtract_GlucoseLine(t *testing.T) {
	n := newNormalizer(t)

	values := n.Extract("Glucose: 95 mg/dl (Normal: 70-110)")

	require.Len(t, values, 1)
	v := values[0]
	assert.Equal(t, "Glucose Fasting", v.Parameter)
	assert.Equal(t, 95.0, v.Value)
	assert.Equal(t, "mg/dL", v.Unit)
	assert.Equal(t, models.StatusNormal, v.Status)
	assert.False(t, v.Flagged)
	assert.Equal(t, models.ReferenceRange{Min: 70, Max: 110}, v.ReferenceRange)
	assert.Equal(t, "1558-6", v.Code)
	assert.False(t, v.AutoDetected)
}

func TestExtract_SpecificRulesClaimSpansFirst(t *testing.T) {
	n := newNormalizer(t)

	text := "Total Cholesterol: 190 mg/dL\nHDL Cholesterol: 45 mg/dL\nLDL Cholesterol: 120 mg/dL\nTriglycerides: 160 mg/dL"
	values := n.ExtractLabValues(text)

	require.Len(t, values, 4)
	names := []string{values[0].Parameter, values[1].Parameter, values[2].Parameter, values[3].Parameter}
	assert.Equal(t, []string{"Total Cholesterol", "HDL Cholesterol", "LDL Cholesterol", "Triglycerides"}, names)
	assert.Equal(t, 45.0, values[1].Value)
	assert.Equal(t, models.StatusHigh, values[3].Status)
	assert.True(t, values[3].Flagged)
}

func TestExtract_HbA1cIsNotHemoglobin(t *testing.T) {
	n := newNormalizer(t)

	values := n.ExtractLabValues("Hemoglobin A1c: 6.5 %\nHemoglobin: 13.2 g/dl")

	require.Len(t, values, 2)
	assert.Equal(t, "HbA1c", values[0].Parameter)
	assert.Equal(t, "%", values[0].Unit)
	assert.Equal(t, "Hemoglobin", values[1].Parameter)
	assert.Equal(t, "g/dL", values[1].Unit)
}

func TestExtract_ConvertsToDefaultUnit(t *testing.T) {
	n := newNormalizer(t)

	values := n.ExtractLabValues("Fasting glucose 5.5 mmol/L")

	require.Len(t, values, 1)
	assert.Equal(t, "mg/dL", values[0].Unit)
	assert.InDelta(t, 99.09, values[0].Value, 0.001)
}

func TestExtract_ImplausibleValueSkipped(t *testing.T) {
	n := newNormalizer(t)

	values := n.ExtractLabValues("Hemoglobin 140 g/dl")
	assert.Empty(t, values)
}

func TestExtract_AggressiveFallback(t *testing.T) {
	n := newNormalizer(t)

	values := n.Extract("Patient age 72\nReading 142 recorded at home")

	require.Len(t, values, 1)
	assert.True(t, values[0].AutoDetected)
	assert.Equal(t, 142.0, values[0].Value)
	assert.Equal(t, "Glucose Fasting", values[0].Parameter)
	assert.Less(t, values[0].Confidence, 0.6)
}

func TestExtract_NothingToFind(t *testing.T) {
	n := newNormalizer(t)

	assert.Empty(t, n.Extract("Values not recoverable from source document"))
}

func TestExtractTestResults(t *testing.T) {
	n := newNormalizer(t)

	results := n.ExtractTestResults("HIV I & II: Non-Reactive\nHBsAg: Positive\nBlood Group: B+")

	require.Len(t, results, 3)
	assert.Equal(t, "HIV", results[0].Name)
	assert.Equal(t, "Non-reactive", results[0].Result)
	assert.Equal(t, "normal", results[0].Interpretation)
	assert.Equal(t, "HBsAg", results[1].Name)
	assert.Equal(t, "abnormal", results[1].Interpretation)
	assert.Equal(t, "Blood Group", results[2].Name)
	assert.Equal(t, "B+", results[2].Result)
}

func TestLookup(t *testing.T) {
	n := newNormalizer(t)

	rule, ok := n.Lookup("Fasting Blood Sugar")
	require.True(t, ok)
	assert.Equal(t, "Glucose Fasting", rule.Name)

	rule, ok = n.Lookup("HDL Cholesterol")
	require.True(t, ok)
	assert.Equal(t, "HDL Cholesterol", rule.Name)

	_, ok = n.Lookup("Serum Ferritin")
	assert.False(t, ok)
}

func TestCanonicalUnit(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"mg%", "mg/dL", true},
		{"mg/dl", "mg/dL", true},
		{"mg / dl", "mg/dL", true},
		{"mg/dL", "mg/dL", true},
		{"µmol/l", "μmol/L", true},
		{"x10^3/uL", "10^3/μL", true},
		{"gm%", "g/dL", true},
		{"furlongs", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizer.CanonicalUnit(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if ok {
			again, _ := normalizer.CanonicalUnit(got)
			assert.Equal(t, got, again, "canonical form of %q must be stable", tt.in)
		}
	}
}

func TestParseRange(t *testing.T) {
	r, ok := normalizer.ParseRange("70 - 110")
	require.True(t, ok)
	assert.Equal(t, models.ReferenceRange{Min: 70, Max: 110}, r)

	r, ok = normalizer.ParseRange("< 200")
	require.True(t, ok)
	assert.Equal(t, models.ReferenceRange{Min: 0, Max: 200}, r)

	_, ok = normalizer.ParseRange("see note")
	assert.False(t, ok)
}

func TestParseRuleTable_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":            `version: "1"`,
		"bad range":        "parameters:\n  - name: X\n    synonyms: [x]\n    unit: mg/dL\n    range: {min: 5, max: 1}\n",
		"duplicate":        "parameters:\n  - name: X\n    synonyms: [x]\n    unit: mg/dL\n    range: {min: 1, max: 5}\n  - name: X\n    synonyms: [y]\n    unit: mg/dL\n    range: {min: 1, max: 5}\n",
		"no synonyms":      "parameters:\n  - name: X\n    unit: mg/dL\n    range: {min: 1, max: 5}\n",
		"unknown fallback": "aggressive: {parameter: Y, min: 1, max: 2}\nparameters:\n  - name: X\n    synonyms: [x]\n    unit: mg/dL\n    range: {min: 1, max: 5}\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := normalizer.ParseRuleTable([]byte(doc))
			assert.ErrorIs(t, err, normalizer.ErrInvalidRuleTable)
		})
	}
}
