package extractor

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Finding kinds
const (
	KindCondition  = "condition"
	KindSymptom    = "symptom"
	KindMedication = "medication"
)

// Temporal directions
const (
	DirectionImproved = "improved"
	DirectionWorsened = "worsened"
	DirectionStable   = "stable"
)

// Term is one lexicon entry with its phrasings
type Term struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

// NegationCues configures negation detection
type NegationCues struct {
	Pre         []string `yaml:"pre"`
	Post        []string `yaml:"post"`
	Terminators []string `yaml:"terminators"`
}

// TemporalWords lists change-direction words per direction
type TemporalWords struct {
	Improved []string `yaml:"improved"`
	Worsened []string `yaml:"worsened"`
	Stable   []string `yaml:"stable"`
}

// Lexicon is the clinical vocabulary used by the narrative and handwritten
// extractors. It must be compiled before use; the constructors do that.
type Lexicon struct {
	Version     string        `yaml:"version"`
	Conditions  []Term        `yaml:"conditions"`
	Symptoms    []Term        `yaml:"symptoms"`
	Medications []Term        `yaml:"medications"`
	Negation    NegationCues  `yaml:"negation"`
	Temporal    TemporalWords `yaml:"temporal"`

	matchers    []termMatcher
	negPre      *regexp.Regexp
	negPost     *regexp.Regexp
	terminators *regexp.Regexp
	directions  []directionMatcher
}

type termMatcher struct {
	name    string
	kind    string
	pattern *regexp.Regexp
}

type directionMatcher struct {
	direction string
	pattern   *regexp.Regexp
}

// hit is a lexicon term found in a sentence
type hit struct {
	name       string
	kind       string
	start, end int
}

// DefaultLexicon returns the embedded lexicon
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexicon)
}

// LoadLexicon reads a lexicon from a YAML file
func LoadLexicon(path string) (*Lexicon, error) {
	const op = "LoadLexicon"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExtractorError(op, err, fmt.Sprintf("failed to read %s", path))
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes and compiles a YAML lexicon
func ParseLexicon(data []byte) (*Lexicon, error) {
	const op = "ParseLexicon"

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, WrapExtractorError(op, ErrInvalidLexicon, err.Error())
	}
	if err := lex.compile(); err != nil {
		return nil, WrapExtractorError(op, ErrInvalidLexicon, err.Error())
	}
	return &lex, nil
}

func (l *Lexicon) compile() error {
	if len(l.Conditions)+len(l.Symptoms)+len(l.Medications) == 0 {
		return fmt.Errorf("lexicon has no terms")
	}

	groups := []struct {
		kind  string
		terms []Term
	}{
		{KindCondition, l.Conditions},
		{KindSymptom, l.Symptoms},
		{KindMedication, l.Medications},
	}
	for _, g := range groups {
		for _, t := range g.terms {
			if t.Name == "" || len(t.Synonyms) == 0 {
				return fmt.Errorf("%s entry %q is incomplete", g.kind, t.Name)
			}
			re, err := phraseRegexp(t.Synonyms)
			if err != nil {
				return fmt.Errorf("%s %q: %w", g.kind, t.Name, err)
			}
			l.matchers = append(l.matchers, termMatcher{name: t.Name, kind: g.kind, pattern: re})
		}
	}

	var err error
	if l.negPre, err = phraseRegexp(l.Negation.Pre); err != nil {
		return fmt.Errorf("negation pre cues: %w", err)
	}
	if l.negPost, err = phraseRegexp(l.Negation.Post); err != nil {
		return fmt.Errorf("negation post cues: %w", err)
	}
	if l.terminators, err = phraseRegexp(l.Negation.Terminators); err != nil {
		return fmt.Errorf("negation terminators: %w", err)
	}

	for _, d := range []struct {
		direction string
		words     []string
	}{
		{DirectionImproved, l.Temporal.Improved},
		{DirectionWorsened, l.Temporal.Worsened},
		{DirectionStable, l.Temporal.Stable},
	} {
		re, err := phraseRegexp(d.words)
		if err != nil {
			return fmt.Errorf("temporal %s: %w", d.direction, err)
		}
		l.directions = append(l.directions, directionMatcher{direction: d.direction, pattern: re})
	}
	return nil
}

// phraseRegexp compiles phrases into one case-insensitive alternation with
// word boundaries at alphanumeric edges.
func phraseRegexp(phrases []string) (*regexp.Regexp, error) {
	if len(phrases) == 0 {
		return nil, fmt.Errorf("no phrases")
	}
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return nil, fmt.Errorf("empty phrase")
		}
		quoted := strings.ReplaceAll(regexp.QuoteMeta(p), " ", `[ \t]+`)

		first, _ := utf8.DecodeRuneInString(p)
		last, _ := utf8.DecodeLastRuneInString(p)
		if isASCIIWord(first) {
			quoted = `\b` + quoted
		}
		if isASCIIWord(last) {
			quoted += `\b`
		}
		parts = append(parts, quoted)
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
}

func isASCIIWord(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

// findTerms returns the non-overlapping lexicon terms of the given kinds in
// s, in reading order. Earlier entries claim spans first.
func (l *Lexicon) findTerms(s string, kinds ...string) []hit {
	want := map[string]bool{}
	for _, k := range kinds {
		want[k] = true
	}

	var hits []hit
	for _, m := range l.matchers {
		if !want[m.kind] {
			continue
		}
		for _, loc := range m.pattern.FindAllStringIndex(s, -1) {
			h := hit{name: m.name, kind: m.kind, start: loc[0], end: loc[1]}
			if overlapsHit(hits, h.start, h.end) {
				continue
			}
			hits = append(hits, h)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

func overlapsHit(hits []hit, start, end int) bool {
	for _, h := range hits {
		if start < h.end && h.start < end {
			return true
		}
	}
	return false
}

// MentionedTerms returns the canonical names of the lexicon terms found in
// text, in reading order and without duplicates.
func (l *Lexicon) MentionedTerms(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, h := range l.findTerms(text, KindCondition, KindSymptom, KindMedication) {
		if !seen[h.name] {
			seen[h.name] = true
			names = append(names, h.name)
		}
	}
	return names
}
