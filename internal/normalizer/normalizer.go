// Package normalizer recognizes medical entities in free text.
//
// Recognition is driven by an ordered, externally loaded rule table (see
// rules.yaml). Each rule matches several synonym phrasings of one analyte
// followed by a numeric value and an optional unit. The first rule that
// matches a span of text claims it, so more specific rules (HDL Cholesterol)
// must precede generic ones (Total Cholesterol).
//
// When no rule matches anywhere, an aggressive pass recovers a single bare
// number inside the plausible window of a default analyte and tags it as
// auto-detected with reduced confidence.
package normalizer

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

const (
	// maxFillerChars bounds the non-digit text allowed between a synonym and its value.
	maxFillerChars = 40

	// Confidence assigned to individual lab values.
	confidenceWithUnit    = 0.90
	confidenceWithoutUnit = 0.80
	confidenceAutoDetect  = 0.50
)

var (
	rangeBetween = regexp.MustCompile(`(\d+(?:\.\d+)?)[ \t]*(?:-|–|to)[ \t]*(\d+(?:\.\d+)?)`)
	rangeUpper   = regexp.MustCompile(`(?i)(?:<=?|≤|less than|up to|upto|below)[ \t]*(\d+(?:\.\d+)?)`)
	rangeLower   = regexp.MustCompile(`(?i)(?:>=?|≥|more than|greater than|above)[ \t]*(\d+(?:\.\d+)?)`)

	bareNumber = regexp.MustCompile(`\b\d{2,3}(?:\.\d+)?\b`)
	noiseLine  = regexp.MustCompile(`(?i)\b(age|aged|years?|yrs?|date|dob|phone|mobile|tel|fax|id|no|ref|pin|bp|pulse|hr|heart rate|weight|height|temp|temperature|spo2|rr|room|bed|ward|page|mrn)\b`)
)

type compiledRule struct {
	rule    *Rule
	pattern *regexp.Regexp // synonym, filler, value, unit
	name    *regexp.Regexp // synonym anywhere
}

type compiledQualitative struct {
	rule     *QualitativeRule
	pattern  *regexp.Regexp
	abnormal map[string]bool
}

// Normalizer applies a RuleTable to text.
type Normalizer struct {
	table       *RuleTable
	rules       []compiledRule
	byName      map[string]*Rule
	qualitative []compiledQualitative
	log         zerolog.Logger
}

// New compiles a rule table into a Normalizer.
func New(table *RuleTable) (*Normalizer, error) {
	const op = "New"

	n := &Normalizer{
		table:  table,
		byName: make(map[string]*Rule, len(table.Parameters)),
		log:    logger.WithComponent("normalizer"),
	}

	for i := range table.Parameters {
		rule := &table.Parameters[i]
		alt, err := synonymAlternation(rule.Synonyms)
		if err != nil {
			return nil, WrapNormalizerError(op, err, rule.Name)
		}

		pattern, err := regexp.Compile(`(?i)(?:` + alt + `)[^\d\n]{0,` + strconv.Itoa(maxFillerChars) + `}?\b(\d+(?:\.\d+)?)(?:[ \t]*([^\s(\[,;|]+(?:[ \t]*/[ \t]*[^\s(\[,;|]+)?))?`)
		if err != nil {
			return nil, WrapNormalizerError(op, ErrInvalidPattern, rule.Name)
		}
		name, err := regexp.Compile(`(?i)(?:` + alt + `)`)
		if err != nil {
			return nil, WrapNormalizerError(op, ErrInvalidPattern, rule.Name)
		}

		n.rules = append(n.rules, compiledRule{rule: rule, pattern: pattern, name: name})
		n.byName[strings.ToLower(rule.Name)] = rule
	}

	abnormal := make(map[string]bool, len(table.Abnormal))
	for _, a := range table.Abnormal {
		abnormal[strings.ToLower(a)] = true
	}

	for i := range table.Qualitative {
		q := &table.Qualitative[i]
		alt, err := synonymAlternation(q.Synonyms)
		if err != nil {
			return nil, WrapNormalizerError(op, err, q.Name)
		}
		results := q.Results
		if len(results) == 0 {
			results = table.Results
		}
		quoted := make([]string, len(results))
		for j, r := range results {
			quoted[j] = strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(r)), " ", `[ \t]+`)
		}

		pattern, err := regexp.Compile(`(?i)(?:` + alt + `)[^\n]{0,` + strconv.Itoa(maxFillerChars) + `}?\b(` + strings.Join(quoted, "|") + `)(?:[^a-z0-9+\-]|$)`)
		if err != nil {
			return nil, WrapNormalizerError(op, ErrInvalidPattern, q.Name)
		}
		n.qualitative = append(n.qualitative, compiledQualitative{rule: q, pattern: pattern, abnormal: abnormal})
	}

	n.log.Debug().
		Int("rules", len(n.rules)).
		Int("qualitative", len(n.qualitative)).
		Str("version", table.Version).
		Msg("Rule table compiled")

	return n, nil
}

// NewDefault builds a Normalizer from the embedded rule table.
func NewDefault() (*Normalizer, error) {
	table, err := DefaultRuleTable()
	if err != nil {
		return nil, err
	}
	return New(table)
}

// Version is the rule table version used in traceability records.
func (n *Normalizer) Version() string {
	return n.table.Version
}

// Database is the reference database tag of the rule table.
func (n *Normalizer) Database() string {
	return n.table.Database
}

// Rule returns the rule for a canonical parameter name.
func (n *Normalizer) Rule(parameter string) (*Rule, bool) {
	r, ok := n.byName[strings.ToLower(parameter)]
	return r, ok
}

// Lookup finds the first rule whose synonyms occur in label.
func (n *Normalizer) Lookup(label string) (*Rule, bool) {
	for _, cr := range n.rules {
		if cr.name.MatchString(label) {
			return cr.rule, true
		}
	}
	return nil, false
}

// Mentions returns the parameters whose synonyms occur in text, in rule order.
func (n *Normalizer) Mentions(text string) []string {
	var names []string
	for _, cr := range n.rules {
		if cr.name.MatchString(text) {
			names = append(names, cr.rule.Name)
		}
	}
	return names
}

// Extract returns the lab values in text, falling back to aggressive
// extraction when no rule matches.
func (n *Normalizer) Extract(text string) []models.LabValue {
	values := n.ExtractLabValues(text)
	if len(values) > 0 {
		return values
	}
	if v, ok := n.AggressiveExtract(text); ok {
		return []models.LabValue{v}
	}
	return nil
}

type span struct{ start, end int }

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

type positioned struct {
	pos   int
	value models.LabValue
}

// ExtractLabValues applies the rule table in order. Values are returned in
// reading order.
func (n *Normalizer) ExtractLabValues(text string) []models.LabValue {
	var claimed []span
	var found []positioned

	for _, cr := range n.rules {
		for _, m := range cr.pattern.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[0], m[1]}
			if overlaps(claimed, s) {
				continue
			}

			value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
			if err != nil {
				continue
			}
			var unitToken string
			if m[4] >= 0 {
				unitToken = text[m[4]:m[5]]
			}

			lineEnd := strings.IndexByte(text[m[3]:], '\n')
			rest := text[m[3]:]
			if lineEnd >= 0 {
				rest = rest[:lineEnd]
			}

			lv, ok := n.BuildLabValue(cr.rule, value, unitToken, rest, lineAt(text, m[0]))
			if !ok {
				continue
			}

			claimed = append(claimed, s)
			found = append(found, positioned{pos: m[0], value: lv})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	values := make([]models.LabValue, 0, len(found))
	for _, f := range found {
		values = append(values, f.value)
	}

	n.log.Debug().Int("lab_values", len(values)).Msg("Rule extraction finished")
	return values
}

// BuildLabValue turns a recognized value into a LabValue. rangeText is
// searched for an explicit reference range; the rule's default range applies
// otherwise. It returns false when the value is outside the rule's plausible
// window.
func (n *Normalizer) BuildLabValue(rule *Rule, value float64, unitToken, rangeText, raw string) (models.LabValue, bool) {
	canonical, known := CanonicalUnit(unitToken)

	unit := rule.Unit
	r := models.ReferenceRange{Min: rule.Range.Min, Max: rule.Range.Max}
	check := value

	if explicit, ok := parseRange(rangeText, rule); ok {
		r = explicit
		if known {
			unit = canonical
			if f, ok := rule.Conversions[canonical]; ok && canonical != rule.Unit {
				check = value * f
			}
		}
	} else if known && canonical != rule.Unit {
		if f, ok := rule.Conversions[canonical]; ok {
			value = round2(value * f)
			check = value
		}
	}

	if rule.Plausible.Max > 0 && (check < rule.Plausible.Min || check > rule.Plausible.Max) {
		n.log.Debug().
			Str("parameter", rule.Name).
			Float64("value", check).
			Msg("Value outside plausible window, skipping")
		return models.LabValue{}, false
	}

	confidence := confidenceWithoutUnit
	if known {
		confidence = confidenceWithUnit
	}

	status := ClassifyStatus(value, r)
	return models.LabValue{
		Parameter:      rule.Name,
		Code:           rule.Code,
		Value:          value,
		Unit:           unit,
		ReferenceRange: r,
		Status:         status,
		Flagged:        status != models.StatusNormal,
		Confidence:     confidence,
		RawText:        strings.TrimSpace(raw),
	}, true
}

// AggressiveExtract scans for the first bare number inside the default
// analyte's plausible window.
func (n *Normalizer) AggressiveExtract(text string) (models.LabValue, bool) {
	agg := n.table.Aggressive
	rule, ok := n.Rule(agg.Parameter)
	if !ok {
		return models.LabValue{}, false
	}

	for _, line := range strings.Split(text, "\n") {
		if noiseLine.MatchString(line) {
			continue
		}
		for _, m := range bareNumber.FindAllStringIndex(line, -1) {
			if adjacentToSeparator(line, m[0], m[1]) {
				continue
			}
			v, err := strconv.ParseFloat(line[m[0]:m[1]], 64)
			if err != nil || v < agg.Min || v > agg.Max {
				continue
			}

			r := models.ReferenceRange{Min: rule.Range.Min, Max: rule.Range.Max}
			status := ClassifyStatus(v, r)

			n.log.Debug().
				Str("parameter", rule.Name).
				Float64("value", v).
				Msg("Aggressive extraction recovered a value")

			return models.LabValue{
				Parameter:      rule.Name,
				Code:           rule.Code,
				Value:          v,
				Unit:           rule.Unit,
				ReferenceRange: r,
				Status:         status,
				Flagged:        status != models.StatusNormal,
				AutoDetected:   true,
				Confidence:     confidenceAutoDetect,
				RawText:        strings.TrimSpace(line),
			}, true
		}
	}
	return models.LabValue{}, false
}

// ExtractTestResults finds qualitative test outcomes, one per test name.
func (n *Normalizer) ExtractTestResults(text string) []models.TestResult {
	type hit struct {
		pos    int
		result models.TestResult
	}
	var hits []hit
	var claimed []span

	for _, cq := range n.qualitative {
		m := cq.pattern.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		s := span{m[0], m[3]}
		if overlaps(claimed, s) {
			continue
		}
		claimed = append(claimed, s)

		result := strings.ToLower(text[m[2]:m[3]])
		interpretation := "normal"
		if cq.abnormal[result] {
			interpretation = "abnormal"
		}
		if len(cq.rule.Results) > 0 {
			interpretation = ""
		}

		hits = append(hits, hit{pos: m[0], result: models.TestResult{
			Name:           cq.rule.Name,
			Result:         titleCase(result),
			Interpretation: interpretation,
		}})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	results := make([]models.TestResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.result)
	}
	return results
}

// parseRange finds the first explicit reference range in s.
func parseRange(s string, rule *Rule) (models.ReferenceRange, bool) {
	type candidate struct {
		pos int
		r   models.ReferenceRange
	}
	var best *candidate
	consider := func(pos int, r models.ReferenceRange) {
		if !r.Valid() {
			return
		}
		if best == nil || pos < best.pos {
			best = &candidate{pos: pos, r: r}
		}
	}

	if m := rangeBetween.FindStringSubmatchIndex(s); m != nil {
		lo, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		hi, _ := strconv.ParseFloat(s[m[4]:m[5]], 64)
		consider(m[0], models.ReferenceRange{Min: lo, Max: hi})
	}
	if m := rangeUpper.FindStringSubmatchIndex(s); m != nil {
		hi, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		consider(m[0], models.ReferenceRange{Min: 0, Max: hi})
	}
	if m := rangeLower.FindStringSubmatchIndex(s); m != nil {
		lo, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		consider(m[0], models.ReferenceRange{Min: lo, Max: math.Max(rule.Range.Max, lo*2)})
	}

	if best == nil {
		return models.ReferenceRange{}, false
	}
	return best.r, true
}

// ParseRange parses a standalone reference range cell such as "70-110" or "< 200".
func ParseRange(s string) (models.ReferenceRange, bool) {
	return parseRange(s, &Rule{})
}

func synonymAlternation(synonyms []string) (string, error) {
	parts := make([]string, 0, len(synonyms))
	for _, syn := range synonyms {
		syn = strings.ToLower(strings.TrimSpace(syn))
		if syn == "" {
			return "", ErrInvalidPattern
		}
		p := strings.ReplaceAll(regexp.QuoteMeta(syn), " ", `[ \t\-]+`)

		first, _ := utf8.DecodeRuneInString(syn)
		last, _ := utf8.DecodeLastRuneInString(syn)
		if isWordRune(first) {
			p = `\b` + p
		}
		if isWordRune(last) {
			p += `\b`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "|"), nil
}

func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

func adjacentToSeparator(line string, start, end int) bool {
	if start > 0 && strings.IndexByte("/-.+", line[start-1]) >= 0 {
		return true
	}
	return end < len(line) && strings.IndexByte("/-:", line[end]) >= 0
}

func lineAt(text string, pos int) string {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	end := strings.IndexByte(text[pos:], '\n')
	if end < 0 {
		return text[start:]
	}
	return text[start : pos+end]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
