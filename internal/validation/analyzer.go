package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"medparse/internal/extractor"
	"medparse/internal/normalizer"
	"medparse/pkg/models"
)

// Analyzer confidences, all below the gate threshold.
const (
	heuristicBase    = 0.20
	heuristicPerTerm = 0.03
	heuristicCeiling = 0.50
	openAIConfidence = 0.55

	maxKeyFindings  = 5
	maxFindingChars = 160
)

var reFindingLine = regexp.MustCompile(`(?i)\b(?:impression|diagnos[ie]s|result|finding|advised?|noted|shows?|positive|negative|elevated|raised|low|high)\b`)

// Analyzer summarizes acquired text when extraction found nothing usable.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, text string) (*models.EnhancedAnalysis, error)
}

// HeuristicAnalyzer summarizes text using the clinical lexicon and the lab
// rule table. It never fails.
type HeuristicAnalyzer struct {
	lex *extractor.Lexicon
	n   *normalizer.Normalizer
}

// NewHeuristicAnalyzer creates the default analyzer.
func NewHeuristicAnalyzer(lex *extractor.Lexicon, n *normalizer.Normalizer) *HeuristicAnalyzer {
	return &HeuristicAnalyzer{lex: lex, n: n}
}

// Name implements Analyzer.
func (h *HeuristicAnalyzer) Name() string { return "heuristic" }

// Analyze implements Analyzer.
func (h *HeuristicAnalyzer) Analyze(_ context.Context, text string) (*models.EnhancedAnalysis, error) {
	terms := h.terms(text)

	var findings []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !reFindingLine.MatchString(line) && !mentionsAny(line, terms) {
			continue
		}
		if len(line) > maxFindingChars {
			line = strings.TrimSpace(clip(line, maxFindingChars)) + "..."
		}
		findings = append(findings, line)
		if len(findings) == maxKeyFindings {
			break
		}
	}

	words := len(strings.Fields(text))
	summary := fmt.Sprintf("Unstructured text of %d words; no lab values, test results or diagnoses could be extracted.", words)
	if len(terms) > 0 {
		summary = fmt.Sprintf("Unstructured text of %d words mentioning %s; no lab values, test results or diagnoses could be extracted.",
			words, strings.Join(terms, ", "))
	}

	confidence := heuristicBase + heuristicPerTerm*float64(len(terms))
	if confidence > heuristicCeiling {
		confidence = heuristicCeiling
	}

	return &models.EnhancedAnalysis{
		Summary:      summary,
		KeyFindings:  findings,
		MedicalTerms: terms,
		Analyzer:     h.Name(),
		Confidence:   confidence,
	}, nil
}

func (h *HeuristicAnalyzer) terms(text string) []string {
	var terms []string
	if h.lex != nil {
		terms = append(terms, h.lex.MentionedTerms(text)...)
	}
	if h.n != nil {
		terms = append(terms, h.n.Mentions(text)...)
	}
	return terms
}

func mentionsAny(line string, terms []string) bool {
	lower := strings.ToLower(line)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
