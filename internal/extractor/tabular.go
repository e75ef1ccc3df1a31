package extractor

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

// confidenceUnmapped is the confidence of a lab row whose parameter has no rule.
const confidenceUnmapped = 0.70

var (
	reNumericCell  = regexp.MustCompile(`(?i)^(?:[<>]=?|≤|≥)?[ \t]*(\d+(?:\.\d+)?)[ \t]*(?:\*+|\(?(?:h|l|high|low|hh|ll)\)?)?[ \t]*\*?$`)
	reValueUnit    = regexp.MustCompile(`^(\d+(?:\.\d+)?)[ \t]*([^\d\s]\S*)$`)
	reSeparatorRow = regexp.MustCompile(`^[\s|:+\-=]+$`)
	reHeaderWord   = regexp.MustCompile(`(?i)^(?:tests?|test name|parameters?|investigations?|analytes?|names?|descriptions?|results?|values?|observed value|units?|(?:biological )?reference(?: range| interval| value)?|ref\.? range|normal(?: range| values?)?|range|flags?|status|remarks?)$`)
)

type columns struct {
	name, value, unit, rng, flag int
}

// Tabular extracts parameter, value, unit and range tuples from delimited rows.
type Tabular struct {
	n   *normalizer.Normalizer
	log zerolog.Logger
}

// NewTabular creates the tabular strategy.
func NewTabular(n *normalizer.Normalizer) *Tabular {
	return &Tabular{n: n, log: logger.WithComponent("extractor.tabular")}
}

// Name implements Extractor.
func (t *Tabular) Name() string { return NameTabular }

// Extract implements Extractor.
func (t *Tabular) Extract(text string) Outcome {
	delimiter, rows := splitRows(text)
	trail := newTrail(NameTabular, t.n)

	var data models.ExtractedMedicalData
	cols := columns{name: 0, value: 1, unit: -1, rng: -1, flag: -1}
	haveHeader := false
	parsed := 0

	for _, row := range rows {
		if isHeaderRow(row) {
			cols, haveHeader = headerColumns(row), true
			continue
		}
		if t.parseRow(row, cols, haveHeader, &data) {
			parsed++
		}
	}

	if parsed == 0 {
		data.LabValues = t.n.Extract(text)
		data.TestResults = t.n.ExtractTestResults(text)
		trail.add("no parsable rows, free-text lab extraction used", BaselineTabular)
	} else {
		trail.add(fmt.Sprintf("table: %d rows parsed, delimiter %s", parsed, delimiter), BaselineTabular)
	}
	trail.addData(&data, BaselineTabular)

	t.log.Debug().
		Str("delimiter", delimiter).
		Int("rows", len(rows)).
		Int("parsed", parsed).
		Int("lab_values", len(data.LabValues)).
		Msg("Tabular extraction finished")

	return Outcome{Data: data, Confidence: BaselineTabular, Traceability: trail.records}
}

// parseRow appends the row's lab value or test result to data.
func (t *Tabular) parseRow(row []string, cols columns, haveHeader bool, data *models.ExtractedMedicalData) bool {
	name := cell(row, cols.name)
	if name == "" || !strings.ContainsFunc(name, isLetterRune) {
		return false
	}

	valueCol := cols.value
	if !haveHeader {
		valueCol = firstNumericCell(row, cols.name+1)
		if valueCol < 0 {
			valueCol = cols.name + 1
		}
	}
	raw := cell(row, valueCol)
	if raw == "" {
		return false
	}

	unit := cell(row, cols.unit)
	rangeText := cell(row, cols.rng)
	if !haveHeader {
		rest := row[min(valueCol+1, len(row)):]
		for _, c := range rest {
			c = strings.TrimSpace(c)
			if _, ok := normalizer.ParseRange(c); ok && rangeText == "" {
				rangeText = c
			} else if unit == "" {
				unit = c
			}
		}
	}

	value, unitInValue, numeric := parseValueCell(raw)
	if unitInValue != "" && unit == "" {
		unit = unitInValue
	}
	line := strings.Join(row, " | ")

	if !numeric {
		data.TestResults = append(data.TestResults, models.TestResult{
			Name:           name,
			Result:         raw,
			Unit:           unit,
			Interpretation: interpret(raw),
		})
		return true
	}

	if rule, ok := t.n.Lookup(name); ok {
		lv, ok := t.n.BuildLabValue(rule, value, unit, rangeText, line)
		if !ok {
			return false
		}
		data.LabValues = append(data.LabValues, lv)
		return true
	}

	r, ok := normalizer.ParseRange(rangeText)
	if !ok {
		data.TestResults = append(data.TestResults, models.TestResult{Name: name, Result: raw, Unit: unit})
		return true
	}

	if canonical, known := normalizer.CanonicalUnit(unit); known {
		unit = canonical
	}
	status := normalizer.ClassifyStatus(value, r)
	data.LabValues = append(data.LabValues, models.LabValue{
		Parameter:      name,
		Value:          value,
		Unit:           unit,
		ReferenceRange: r,
		Status:         status,
		Flagged:        status != models.StatusNormal,
		Confidence:     confidenceUnmapped,
		RawText:        line,
	})
	return true
}

// splitRows picks the dominant delimiter and splits every line on it.
func splitRows(text string) (string, [][]string) {
	lines := strings.Split(text, "\n")
	var pipes, tabs, commas int
	for _, l := range lines {
		switch {
		case strings.Contains(l, "|"):
			pipes++
		case strings.Contains(l, "\t"):
			tabs++
		case strings.Contains(l, ","):
			commas++
		}
	}

	switch {
	case pipes > 0 && pipes >= tabs && pipes >= commas:
		return "pipe", splitOn(lines, "|")
	case tabs > 0 && tabs >= commas:
		return "tab", splitOn(lines, "\t")
	case commas > 0:
		return "csv", splitCSV(text)
	}
	return "none", nil
}

func splitOn(lines []string, sep string) [][]string {
	var rows [][]string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || !strings.Contains(l, sep) || reSeparatorRow.MatchString(l) {
			continue
		}
		l = strings.TrimSuffix(strings.TrimPrefix(l, sep), sep)
		cells := strings.Split(l, sep)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

func splitCSV(text string) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			// io.EOF, or a malformed line ends the table
			break
		}
		if len(rec) < 2 {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return rows
}

func isHeaderRow(row []string) bool {
	words := 0
	for _, c := range row {
		if c == "" {
			continue
		}
		if _, _, numeric := parseValueCell(c); numeric {
			return false
		}
		if reHeaderWord.MatchString(c) {
			words++
		}
	}
	return words >= 2
}

func headerColumns(row []string) columns {
	cols := columns{name: -1, value: -1, unit: -1, rng: -1, flag: -1}
	for i, c := range row {
		c = strings.ToLower(strings.TrimSpace(c))
		switch {
		case strings.Contains(c, "unit"):
			cols.unit = first(cols.unit, i)
		case strings.Contains(c, "range") || strings.Contains(c, "reference") ||
			strings.Contains(c, "normal") || strings.Contains(c, "interval"):
			cols.rng = first(cols.rng, i)
		case strings.Contains(c, "flag") || strings.Contains(c, "status") || strings.Contains(c, "remark"):
			cols.flag = first(cols.flag, i)
		case strings.Contains(c, "result") || strings.Contains(c, "value"):
			cols.value = first(cols.value, i)
		default:
			cols.name = first(cols.name, i)
		}
	}
	if cols.name < 0 {
		cols.name = 0
	}
	if cols.value < 0 {
		cols.value = cols.name + 1
	}
	return cols
}

func first(current, i int) int {
	if current >= 0 {
		return current
	}
	return i
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func firstNumericCell(row []string, from int) int {
	for i := from; i < len(row); i++ {
		if _, _, ok := parseValueCell(row[i]); ok {
			return i
		}
	}
	return -1
}

// parseValueCell reads a numeric cell, tolerating H/L flags and an attached unit.
func parseValueCell(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	if m := reNumericCell.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		return v, "", err == nil
	}
	if m := reValueUnit.FindStringSubmatch(s); m != nil {
		if _, known := normalizer.CanonicalUnit(m[2]); known {
			v, err := strconv.ParseFloat(m[1], 64)
			return v, m[2], err == nil
		}
	}
	return 0, "", false
}

var (
	normalResults   = []string{"non-reactive", "non reactive", "nonreactive", "not detected", "negative", "absent", "nil", "normal"}
	abnormalResults = []string{"reactive", "detected", "positive", "present", "trace", "abnormal"}
)

// interpret maps a qualitative result to normal or abnormal.
func interpret(result string) string {
	r := strings.ToLower(strings.TrimSpace(result))
	for _, w := range normalResults {
		if strings.HasPrefix(r, w) {
			return "normal"
		}
	}
	for _, w := range abnormalResults {
		if strings.HasPrefix(r, w) {
			return "abnormal"
		}
	}
	return ""
}

func isLetterRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
