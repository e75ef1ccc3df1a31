package benchmark

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"medparse/pkg/models"
)

//go:embed reference.yaml
var defaultReference []byte

const (
	genderAny = "any"
	maxAge    = 120
)

// Bounds is a numeric [Min, Max] interval in the dataset unit
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Cohort is the distribution of a parameter in one age and gender group
type Cohort struct {
	AgeMin int     `yaml:"ageMin"`
	AgeMax int     `yaml:"ageMax"`
	Gender string  `yaml:"gender"` // male, female or any
	Mean   float64 `yaml:"mean"`
	SD     float64 `yaml:"sd"`
}

// Label names the cohort's age group, e.g. "40-59", "60+" or "all ages female"
func (c Cohort) Label() string {
	var label string
	switch {
	case c.AgeMin == 0 && c.AgeMax >= maxAge:
		label = "all ages"
	case c.AgeMax >= maxAge:
		label = fmt.Sprintf("%d+", c.AgeMin)
	default:
		label = fmt.Sprintf("%d-%d", c.AgeMin, c.AgeMax)
	}
	if c.Gender != genderAny {
		label += " " + c.Gender
	}
	return label
}

func (c Cohort) span() int { return c.AgeMax - c.AgeMin }

// DiseaseCohort is the distribution of a parameter among patients with a condition
type DiseaseCohort struct {
	Disease string  `yaml:"disease"`
	Mean    float64 `yaml:"mean"`
	SD      float64 `yaml:"sd"`
}

// Regional is a reference range published for one region
type Regional struct {
	Region string `yaml:"region"`
	Source string `yaml:"source"`
	Range  Bounds `yaml:"range"`
}

// Dataset holds the reference data for one parameter
type Dataset struct {
	Parameter   string             `yaml:"parameter"`
	Unit        string             `yaml:"unit"`
	Dataset     string             `yaml:"dataset"`
	Conversions map[string]float64 `yaml:"conversions"` // Factor from unit to Unit
	Cohorts     []Cohort           `yaml:"cohorts"`
	Diseases    []DiseaseCohort    `yaml:"diseases"`
	Regional    []Regional         `yaml:"regional"`
}

// ReferenceFile is the externally loaded set of datasets
type ReferenceFile struct {
	Version    string    `yaml:"version"`
	Parameters []Dataset `yaml:"parameters"`
}

// Query selects the cohort and regional standard for a lookup
type Query struct {
	Age    int    // Years, 0 when unknown
	Gender string // male, female or empty
	Region string // Regional standard key, empty for none
}

// Reference is the reference data resolved for one parameter and query
type Reference struct {
	Parameter   string
	Unit        string
	Dataset     string
	Version     string
	Cohort      Cohort
	Diseases    []DiseaseCohort
	Regional    *Regional
	conversions map[string]float64
}

// Convert expresses v, measured in unit, in the dataset unit. An empty unit
// is taken to be the dataset unit.
func (r *Reference) Convert(v float64, unit string) (float64, error) {
	if unit == "" || unit == r.Unit {
		return v, nil
	}
	if f, ok := r.conversions[unit]; ok {
		return v * f, nil
	}
	for u, f := range r.conversions {
		if strings.EqualFold(u, unit) {
			return v * f, nil
		}
	}
	return 0, WrapBenchmarkError("Convert", ErrUnsupportedUnit, fmt.Sprintf("%s for %s", unit, r.Parameter))
}

// Referencer resolves reference data for a parameter.
type Referencer interface {
	Lookup(parameter string, q Query) (*Reference, bool)
	Version() string
}

// Store is an in-memory Referencer built from a ReferenceFile.
type Store struct {
	version string
	byParam map[string]*Dataset
}

// DefaultReferenceFile returns the embedded datasets
func DefaultReferenceFile() (*ReferenceFile, error) {
	return ParseReferenceFile(defaultReference)
}

// LoadReferenceFile reads datasets from a YAML file
func LoadReferenceFile(path string) (*ReferenceFile, error) {
	const op = "LoadReferenceFile"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapBenchmarkError(op, err, fmt.Sprintf("failed to read %s", path))
	}
	return ParseReferenceFile(data)
}

// ParseReferenceFile decodes and validates YAML datasets
func ParseReferenceFile(data []byte) (*ReferenceFile, error) {
	const op = "ParseReferenceFile"

	var file ReferenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, WrapBenchmarkError(op, ErrInvalidReference, err.Error())
	}
	if err := file.validate(); err != nil {
		return nil, WrapBenchmarkError(op, ErrInvalidReference, err.Error())
	}
	return &file, nil
}

func (f *ReferenceFile) validate() error {
	if len(f.Parameters) == 0 {
		return fmt.Errorf("no parameters defined")
	}

	seen := make(map[string]bool, len(f.Parameters))
	for _, d := range f.Parameters {
		if d.Parameter == "" {
			return fmt.Errorf("dataset without parameter name")
		}
		key := strings.ToLower(d.Parameter)
		if seen[key] {
			return fmt.Errorf("duplicate parameter %q", d.Parameter)
		}
		seen[key] = true
		if d.Unit == "" {
			return fmt.Errorf("parameter %q has no unit", d.Parameter)
		}
		if len(d.Cohorts) == 0 {
			return fmt.Errorf("parameter %q has no cohorts", d.Parameter)
		}
		for _, c := range d.Cohorts {
			if c.SD <= 0 {
				return fmt.Errorf("parameter %q has a cohort with non-positive sd", d.Parameter)
			}
			if c.AgeMin > c.AgeMax {
				return fmt.Errorf("parameter %q has an empty age group %d-%d", d.Parameter, c.AgeMin, c.AgeMax)
			}
		}
		for _, dc := range d.Diseases {
			if dc.SD <= 0 {
				return fmt.Errorf("parameter %q has disease cohort %q with non-positive sd", d.Parameter, dc.Disease)
			}
		}
		for _, r := range d.Regional {
			if r.Range.Min >= r.Range.Max {
				return fmt.Errorf("parameter %q has invalid %s range", d.Parameter, r.Region)
			}
		}
		for u, factor := range d.Conversions {
			if factor <= 0 {
				return fmt.Errorf("parameter %q has invalid conversion from %s", d.Parameter, u)
			}
		}
	}
	return nil
}

// NewStore indexes a reference file. Cohort genders are normalized to
// lower case with "any" as default.
func NewStore(file *ReferenceFile) *Store {
	s := &Store{
		version: file.Version,
		byParam: make(map[string]*Dataset, len(file.Parameters)),
	}
	for i := range file.Parameters {
		d := &file.Parameters[i]
		for j := range d.Cohorts {
			g := strings.ToLower(strings.TrimSpace(d.Cohorts[j].Gender))
			if g == "" {
				g = genderAny
			}
			d.Cohorts[j].Gender = g
		}
		s.byParam[strings.ToLower(d.Parameter)] = d
	}
	return s
}

// NewDefaultStore creates a store over the embedded datasets.
func NewDefaultStore() (*Store, error) {
	file, err := DefaultReferenceFile()
	if err != nil {
		return nil, err
	}
	return NewStore(file), nil
}

// Version returns the reference file version.
func (s *Store) Version() string { return s.version }

// Lookup resolves the dataset, best matching cohort and regional standard
// for parameter. It reports false when the parameter has no dataset or no
// cohort matches the query.
func (s *Store) Lookup(parameter string, q Query) (*Reference, bool) {
	d, ok := s.byParam[strings.ToLower(parameter)]
	if !ok {
		return nil, false
	}

	cohort, ok := selectCohort(d.Cohorts, q)
	if !ok {
		return nil, false
	}

	ref := &Reference{
		Parameter:   d.Parameter,
		Unit:        d.Unit,
		Dataset:     d.Dataset,
		Version:     s.version,
		Cohort:      cohort,
		Diseases:    d.Diseases,
		conversions: d.Conversions,
	}
	if q.Region != "" {
		for i := range d.Regional {
			if strings.EqualFold(d.Regional[i].Region, q.Region) {
				ref.Regional = &d.Regional[i]
				break
			}
		}
	}
	return ref, true
}

// selectCohort prefers a gender-specific cohort over "any". With a known age
// the narrowest covering age group wins; without one the widest does.
func selectCohort(cohorts []Cohort, q Query) (Cohort, bool) {
	gender := strings.ToLower(strings.TrimSpace(q.Gender))

	best := -1
	for i, c := range cohorts {
		if c.Gender != genderAny && c.Gender != gender {
			continue
		}
		if q.Age > 0 && (q.Age < c.AgeMin || q.Age > c.AgeMax) {
			continue
		}
		if best < 0 || betterCohort(c, cohorts[best], q.Age > 0) {
			best = i
		}
	}
	if best < 0 {
		return Cohort{}, false
	}
	return cohorts[best], true
}

func betterCohort(c, than Cohort, ageKnown bool) bool {
	cSpecific, thanSpecific := c.Gender != genderAny, than.Gender != genderAny
	if cSpecific != thanSpecific {
		return cSpecific
	}
	if ageKnown {
		return c.span() < than.span()
	}
	return c.span() > than.span()
}

func (b Bounds) toRange() models.ReferenceRange {
	return models.ReferenceRange{Min: b.Min, Max: b.Max}
}
