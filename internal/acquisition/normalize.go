package acquisition

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"medparse/internal/normalizer"
)

var (
	reColumnGap    = regexp.MustCompile(` {3,}`)
	reSpaceAtTab   = regexp.MustCompile(` *\t *`)
	reMultiSpace   = regexp.MustCompile(` {2,}`)
	reManyNewlines = regexp.MustCompile(`\n{3,}`)
	reDecimalComma = regexp.MustCompile(`\b(\d{1,4}),(\d{1,2})\b`)

	// prefix, then numerator / denominator with optional blanks around the slash
	reSpacedUnit = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}\p{M}^])((?:x10\^[0-9]{1,2}|10\^[0-9]{1,2}|mgs|mgm|mg|gms|gm|g|mmol|umol|μmol|meq|miu|uiu|μiu|iu|units|u|ng|pg|thou|million|mill|k|cells)[ \t]*/[ \t]*(?:100ml|dl|ml|μl|ul|mm\^?3|cumm|l))`)

	superscripts = strings.NewReplacer("³", "^3", "⁶", "^6", "⁹", "^9")
	blanks       = strings.NewReplacer(" ", "", "\t", "")
)

// Normalize cleans acquired text. Applying it twice yields the same string
// as applying it once.
func Normalize(text string) string {
	text = unifyWhitespace(text)
	text = norm.NFKC.String(superscripts.Replace(text))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = reColumnGap.ReplaceAllString(line, "\t")
		line = reSpaceAtTab.ReplaceAllString(line, "\t")
		line = reMultiSpace.ReplaceAllString(line, " ")
		line = strings.Trim(line, " \t")
		if strings.Count(line, ",") == 1 {
			line = reDecimalComma.ReplaceAllString(line, "$1.$2")
		}
		lines[i] = repairUnitSpacing(line)
	}
	text = strings.Join(lines, "\n")

	text = reManyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// unifyWhitespace maps line endings to \n, other whitespace to a space and
// drops control characters. Tabs are kept as column separators.
func unifyWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		case '\r', '\f', '\v', '\u2028', '\u2029', '\u0085':
			return '\n'
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || r == '\ufeff' || r == '\ufffd' {
			return -1
		}
		return r
	}, text)
}

// repairUnitSpacing rewrites "mg / dl" style units to their canonical form.
// A unit directly followed by a letter, digit or mark is left alone.
func repairUnitSpacing(line string) string {
	matches := reSpacedUnit.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return line
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		unitStart, unitEnd := m[4], m[5]
		if next, _ := utf8.DecodeRuneInString(line[unitEnd:]); unitEnd < len(line) && isUnitContinuation(next) {
			continue
		}
		unit := line[unitStart:unitEnd]
		canonical, ok := normalizer.CanonicalUnit(unit)
		if !ok {
			canonical = blanks.Replace(unit)
		}
		b.WriteString(line[last:unitStart])
		b.WriteString(canonical)
		last = unitEnd
	}
	b.WriteString(line[last:])
	return b.String()
}

func isUnitContinuation(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
