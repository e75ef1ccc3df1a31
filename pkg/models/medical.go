package models

import "time"

// LabStatus is the clinical status of a lab value against its reference range
type LabStatus string

const (
	StatusNormal     LabStatus = "normal"
	StatusLow        LabStatus = "low"
	StatusHigh       LabStatus = "high"
	StatusCritical   LabStatus = "critical"
	StatusBorderline LabStatus = "borderline"
)

// ReferenceRange is the [Min, Max] interval considered normal
type ReferenceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Valid reports whether the range is usable for status classification
func (r ReferenceRange) Valid() bool {
	return r.Min < r.Max
}

// LabValue is a single normalized laboratory measurement
type LabValue struct {
	Parameter      string         `json:"parameter"`          // Canonical parameter name
	Code           string         `json:"code,omitempty"`     // LOINC code when known
	Value          float64        `json:"value"`              // Numeric value in Unit
	Unit           string         `json:"unit"`               // Canonical unit
	ReferenceRange ReferenceRange `json:"referenceRange"`     // Range used for Status
	Status         LabStatus      `json:"status"`             // Derived from Value and ReferenceRange
	Flagged        bool           `json:"flagged"`            // Status is anything but normal
	AutoDetected   bool           `json:"autoDetected,omitempty"`
	Confidence     float64        `json:"confidence"`
	RawText        string         `json:"rawText,omitempty"` // Source line the value was read from
}

// TestResult is a qualitative test outcome ("HIV: Non-reactive")
type TestResult struct {
	Name           string `json:"name"`
	Result         string `json:"result"`
	Unit           string `json:"unit,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
}

// Diagnosis is a positively asserted condition
type Diagnosis struct {
	Condition string `json:"condition"`
	Source    string `json:"source,omitempty"` // Section or pass that produced it
}

// Medication is a prescribed or reported drug
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Finding is a symptom or condition mention, positive or negated
type Finding struct {
	Term     string `json:"term"`
	Kind     string `json:"kind"` // "symptom" or "condition"
	Negated  bool   `json:"negated"`
	Sentence string `json:"sentence,omitempty"`
}

// TemporalChange is a change-direction statement bound to a time reference
type TemporalChange struct {
	Subject       string `json:"subject"`
	Direction     string `json:"direction"` // improved, worsened, stable
	TimeReference string `json:"timeReference"`
	Sentence      string `json:"sentence"`
}

// PatientInfo holds demographic fields read from the document itself
type PatientInfo struct {
	Name      string `json:"name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	PatientID string `json:"patientId,omitempty"`
}

// ExtractedMedicalData is the canonical record produced by an extractor
type ExtractedMedicalData struct {
	LabValues       []LabValue        `json:"labValues"`
	TestResults     []TestResult      `json:"testResults"`
	Diagnoses       []Diagnosis       `json:"diagnoses"`
	Medications     []Medication      `json:"medications"`
	Symptoms        []Finding         `json:"symptoms,omitempty"`
	NegatedFindings []Finding         `json:"negatedFindings,omitempty"`
	TemporalChanges []TemporalChange  `json:"temporalChanges,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Sections        map[string]string `json:"sections,omitempty"`
	Patient         *PatientInfo      `json:"patient,omitempty"`
}

// HasRealData reports whether any lab value, test result or diagnosis was found
func (d *ExtractedMedicalData) HasRealData() bool {
	return len(d.LabValues)+len(d.TestResults)+len(d.Diagnoses) > 0
}

// ItemCount is the number of extracted records of any kind
func (d *ExtractedMedicalData) ItemCount() int {
	return len(d.LabValues) + len(d.TestResults) + len(d.Diagnoses) + len(d.Medications)
}

// TraceabilityRecord binds a claim to the component and reference that produced it
type TraceabilityRecord struct {
	Claim             string    `json:"claim"`
	Source            string    `json:"source"`
	Confidence        float64   `json:"confidence"`
	ReferenceDatabase string    `json:"referenceDatabase"`
	ReferenceVersion  string    `json:"referenceVersion"`
	RecordedAt        time.Time `json:"recordedAt"`
}
