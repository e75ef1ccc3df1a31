package acquisition

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FallbackQuality is the fixed quality of generated placeholder text.
const FallbackQuality = 0.10

var reMedicalKeyword = regexp.MustCompile(`(?i)\b(glucose|sugar|hba1c|cholesterol|hdl|ldl|triglycerides?|hemoglobin|haemoglobin|creatinine|urea|bun|tsh|platelets?|wbc|rbc|sodium|potassium|bilirubin|albumin|vitamin|diagnosis|impression|patient|reference|range|result|specimen|prescription|history|examination|mg/dl|mmol)\b`)

// QualityScore estimates how usable acquired text is, in [0,1].
// Length, printable ratio, digits and medical keywords each contribute.
func QualityScore(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	runes := utf8.RuneCountInString(text)
	score := 0.35 * minFloat(1, float64(runes)/500)
	score += 0.25 * printableRatio(text)
	if strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		score += 0.15
	}
	hits := len(reMedicalKeyword.FindAllStringIndex(text, 8))
	score += 0.25 * minFloat(1, float64(hits)/3)

	return clamp01(score)
}

// printableRatio returns the ratio of printable characters in text.
func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if r >= 0xE000 && r <= 0xF8FF || r == 0xFFFD {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(printable) / float64(total)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
