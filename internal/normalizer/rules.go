package normalizer

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Bounds is a numeric [Min, Max] interval in a rule's default unit
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Rule recognizes one analyte
type Rule struct {
	Name        string             `yaml:"name"`        // Canonical parameter name
	Code        string             `yaml:"code"`        // LOINC code
	Synonyms    []string           `yaml:"synonyms"`    // Phrasings, most specific first
	Unit        string             `yaml:"unit"`        // Default canonical unit
	Units       []string           `yaml:"units"`       // Accepted canonical units
	Range       Bounds             `yaml:"range"`       // Default reference range
	Plausible   Bounds             `yaml:"plausible"`   // Values outside are treated as misreads
	Conversions map[string]float64 `yaml:"conversions"` // Factor from unit to Unit
}

// QualitativeRule recognizes a test with a textual result
type QualitativeRule struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
	Results  []string `yaml:"results"` // Overrides the table vocabulary when set
}

// AggressiveRule configures bare-number recovery when no rule matches
type AggressiveRule struct {
	Parameter string  `yaml:"parameter"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

// RuleTable is the externally loaded recognition table
type RuleTable struct {
	Version     string            `yaml:"version"`
	Database    string            `yaml:"database"`
	Aggressive  AggressiveRule    `yaml:"aggressive"`
	Parameters  []Rule            `yaml:"parameters"`
	Qualitative []QualitativeRule `yaml:"qualitative"`
	Results     []string          `yaml:"results"`
	Abnormal    []string          `yaml:"abnormal"`
}

// DefaultRuleTable returns the embedded rule table
func DefaultRuleTable() (*RuleTable, error) {
	return ParseRuleTable(defaultRules)
}

// LoadRuleTable reads a rule table from a YAML file
func LoadRuleTable(path string) (*RuleTable, error) {
	const op = "LoadRuleTable"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapNormalizerError(op, err, fmt.Sprintf("failed to read %s", path))
	}
	return ParseRuleTable(data)
}

// ParseRuleTable decodes and validates a YAML rule table
func ParseRuleTable(data []byte) (*RuleTable, error) {
	const op = "ParseRuleTable"

	var table RuleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, WrapNormalizerError(op, ErrInvalidRuleTable, err.Error())
	}
	if err := table.validate(); err != nil {
		return nil, WrapNormalizerError(op, ErrInvalidRuleTable, err.Error())
	}
	return &table, nil
}

func (t *RuleTable) validate() error {
	if len(t.Parameters) == 0 {
		return fmt.Errorf("no parameters defined")
	}

	seen := make(map[string]bool, len(t.Parameters))
	for i, r := range t.Parameters {
		if r.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate parameter %q", r.Name)
		}
		seen[r.Name] = true
		if len(r.Synonyms) == 0 {
			return fmt.Errorf("parameter %q has no synonyms", r.Name)
		}
		if r.Unit == "" {
			return fmt.Errorf("parameter %q has no unit", r.Name)
		}
		if r.Range.Min >= r.Range.Max {
			return fmt.Errorf("parameter %q has invalid range [%g, %g]", r.Name, r.Range.Min, r.Range.Max)
		}
	}

	if t.Aggressive.Parameter != "" {
		if !seen[t.Aggressive.Parameter] {
			return fmt.Errorf("aggressive parameter %q is not defined", t.Aggressive.Parameter)
		}
		if t.Aggressive.Min >= t.Aggressive.Max {
			return fmt.Errorf("aggressive window is invalid")
		}
	}

	for i, q := range t.Qualitative {
		if q.Name == "" || len(q.Synonyms) == 0 {
			return fmt.Errorf("qualitative rule %d is incomplete", i)
		}
		if len(q.Results) == 0 && len(t.Results) == 0 {
			return fmt.Errorf("qualitative rule %q has no result vocabulary", q.Name)
		}
	}
	return nil
}
