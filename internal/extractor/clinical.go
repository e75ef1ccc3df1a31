package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"medparse/pkg/models"
)

const (
	// maxNegationWords bounds the words between a pre cue and its finding.
	maxNegationWords = 6
	// maxPostNegationWords bounds the words between a finding and its post cue.
	maxPostNegationWords = 3
	// maxMedicationNameWords bounds a free-text medication name.
	maxMedicationNameWords = 3
)

var (
	reSentenceEnd = regexp.MustCompile(`[.!?](?:[ \t]+|$)|\n+`)
	reClauseMark  = regexp.MustCompile(`[;:]`)
	reAffirmative = regexp.MustCompile(`(?i)\b(has|have|had|reports?|reported|complains? of|presents? with|positive for|developed|c/o)\b`)

	reTimeReference = regexp.MustCompile(`(?i)\b(?:since (?:the )?(?:last|previous|prior) (?:visit|week|month|year|review|report|admission)|since (?:yesterday|morning|admission|discharge)|over the (?:past|last) (?:\d+|few|several|one|two|three|four|five|six) (?:days?|weeks?|months?|years?)|(?:in|within|after) (?:the )?(?:\d+|one|two|three|four|five|six|few|several) (?:days?|weeks?|months?|years?)|(?:\d+|one|two|three|four|five|six|few|several) (?:days?|weeks?|months?|years?) ago|(?:last|previous|prior) (?:visit|week|month|year|review|report)|compared (?:to|with) (?:the )?(?:last|previous|prior) [a-z]+|yesterday|today|this (?:week|month|year)|on follow[- ]up)\b`)

	reFrequency = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(once daily|twice daily|thrice daily|once a day|twice a day|three times a day|at bedtime|before meals|after meals|as needed|every \d+ hours|\d-\d-\d|b\.d\.?|t\.d\.s\.?|q\.i\.d\.?|o\.d\.?|h\.s\.?|s\.o\.s\.?|bid|bd|tid|tds|qid|od|hs|sos|prn|daily|weekly)(?:[^a-z0-9]|$)`)
	reDose      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?[ \t]*(?:mcg|mg|µg|μg|ml|iu|units?|g))(?:[^a-z]|$)`)
	reDoseAfter = regexp.MustCompile(`(?i)^[ \t]*[(\-]?[ \t]*(\d+(?:\.\d+)?[ \t]*(?:mcg|mg|µg|μg|ml|iu|units?|g))(?:[^a-z]|$)`)
	reBullet    = regexp.MustCompile(`^\s*(?:[-*•]|\d{1,2}[.)])\s*`)
	reForm      = regexp.MustCompile(`(?i)^(tablet|tab|capsule|cap|syrup|syp|injection|inj)\.?\s+`)
)

// splitSentences splits text at sentence punctuation and line breaks.
// Decimal points are not sentence ends.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// isNegated reports whether the finding at h is negated inside its clause.
func (l *Lexicon) isNegated(sentence string, h hit) bool {
	clauseStart := 0
	for _, loc := range l.terminators.FindAllStringIndex(sentence[:h.start], -1) {
		clauseStart = loc[1]
	}
	for _, loc := range reClauseMark.FindAllStringIndex(sentence[:h.start], -1) {
		if loc[1] > clauseStart {
			clauseStart = loc[1]
		}
	}

	before := sentence[clauseStart:h.start]
	for _, loc := range l.negPre.FindAllStringIndex(before, -1) {
		if strings.HasPrefix(strings.ToLower(before[loc[0]:]), "no change") {
			continue
		}
		between := before[loc[1]:]
		if len(strings.Fields(between)) <= maxNegationWords && !reAffirmative.MatchString(between) {
			return true
		}
	}

	after := sentence[h.end:]
	if loc := l.terminators.FindStringIndex(after); loc != nil {
		after = after[:loc[0]]
	}
	if i := strings.IndexAny(after, ",;:"); i >= 0 {
		after = after[:i]
	}
	if loc := l.negPost.FindStringIndex(after); loc != nil {
		return len(strings.Fields(after[:loc[0]])) <= maxPostNegationWords
	}
	return false
}

// clinicalFindings is the output of a lexicon pass
type clinicalFindings struct {
	diagnoses   []models.Diagnosis
	symptoms    []models.Finding
	negated     []models.Finding
	medications []models.Medication
}

// scanFindings runs entity extraction and the negation pass over text.
// A term negated anywhere is never reported as positive.
func (l *Lexicon) scanFindings(text, source string) clinicalFindings {
	var f clinicalFindings
	seen := map[string]bool{}
	negated := map[string]bool{}

	for _, sentence := range splitSentences(text) {
		for _, h := range l.findTerms(sentence, KindCondition, KindSymptom, KindMedication) {
			neg := l.isNegated(sentence, h)

			if h.kind == KindMedication {
				if neg || seen[h.kind+h.name] {
					continue
				}
				seen[h.kind+h.name] = true
				med := models.Medication{Name: h.name}
				if m := reDoseAfter.FindStringSubmatch(sentence[h.end:]); m != nil {
					med.Dosage = compactDose(m[1])
				}
				med.Frequency = findFrequency(sentence[h.end:])
				f.medications = append(f.medications, med)
				continue
			}

			if neg {
				if !negated[h.name] {
					negated[h.name] = true
					f.negated = append(f.negated, models.Finding{Term: h.name, Kind: h.kind, Negated: true, Sentence: sentence})
				}
				continue
			}
			if seen[h.kind+h.name] {
				continue
			}
			seen[h.kind+h.name] = true
			switch h.kind {
			case KindCondition:
				f.diagnoses = append(f.diagnoses, models.Diagnosis{Condition: h.name, Source: source})
			case KindSymptom:
				f.symptoms = append(f.symptoms, models.Finding{Term: h.name, Kind: h.kind, Sentence: sentence})
			}
		}
	}

	f.diagnoses = dropNegatedDiagnoses(f.diagnoses, negated)
	kept := f.symptoms[:0]
	for _, s := range f.symptoms {
		if !negated[s.Term] {
			kept = append(kept, s)
		}
	}
	f.symptoms = kept
	return f
}

func dropNegatedDiagnoses(diagnoses []models.Diagnosis, negated map[string]bool) []models.Diagnosis {
	kept := diagnoses[:0]
	for _, d := range diagnoses {
		if !negated[d.Condition] {
			kept = append(kept, d)
		}
	}
	return kept
}

// scanTemporal binds change-direction words to the nearest finding and the
// time reference of the same sentence. lab names a lab parameter mentioned
// in a sentence and may be nil.
func (l *Lexicon) scanTemporal(text string, lab func(string) string) []models.TemporalChange {
	var changes []models.TemporalChange
	for _, sentence := range splitSentences(text) {
		terms := l.findTerms(sentence, KindCondition, KindSymptom, KindMedication)

		direction, at := "", -1
		for _, d := range l.directions {
			for _, loc := range d.pattern.FindAllStringIndex(sentence, -1) {
				if overlapsHit(terms, loc[0], loc[1]) {
					continue
				}
				if at < 0 || loc[0] < at {
					direction, at = d.direction, loc[0]
				}
				break
			}
		}
		if at < 0 {
			continue
		}

		subject := nearestTerm(terms, at)
		if subject == "" && lab != nil {
			subject = lab(sentence)
		}
		if subject == "" {
			subject = "general condition"
		}

		timeRef := reTimeReference.FindString(sentence)
		if timeRef == "" {
			timeRef = "unspecified"
		}

		changes = append(changes, models.TemporalChange{
			Subject:       subject,
			Direction:     direction,
			TimeReference: strings.ToLower(timeRef),
			Sentence:      sentence,
		})
	}
	return changes
}

func nearestTerm(terms []hit, pos int) string {
	best, bestDist := "", -1
	for _, t := range terms {
		d := t.start - pos
		if d < 0 {
			d = pos - t.end
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = t.name, d
		}
	}
	return best
}

func findFrequency(s string) string {
	m := reFrequency.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(m[1], ".", ""))
}

func compactDose(dose string) string {
	return strings.Join(strings.Fields(dose), "")
}

// parseMedicationLine reads one prescription line such as
// "1. Tab. Metformin 500 mg BD". It accepts a line that carries a dosage
// form, a dose or a lexicon medication name.
func (l *Lexicon) parseMedicationLine(line string) (models.Medication, bool) {
	line = reBullet.ReplaceAllString(strings.TrimSpace(line), "")
	form := reForm.FindString(line)
	line = strings.TrimSpace(line[len(form):])
	if line == "" {
		return models.Medication{}, false
	}

	var name, dose, rest string
	if loc := reDose.FindStringSubmatchIndex(line); loc != nil {
		name = line[:loc[2]]
		dose = compactDose(line[loc[2]:loc[3]])
		rest = line[loc[3]:]
	} else {
		name, rest = line, ""
	}

	words := strings.Fields(name)
	var kept []string
	for _, w := range words {
		if len(kept) == maxMedicationNameWords || reFrequency.MatchString(" "+w+" ") {
			break
		}
		kept = append(kept, strings.Trim(w, ",;:-"))
	}
	if rest == "" && len(words) > len(kept) {
		rest = strings.Join(words[len(kept):], " ")
	}
	name = strings.TrimSpace(strings.Join(kept, " "))
	if r, _ := utf8.DecodeRuneInString(name); !unicode.IsLetter(r) {
		return models.Medication{}, false
	}

	known := l.findTerms(name, KindMedication)
	if form == "" && dose == "" && len(known) == 0 {
		return models.Medication{}, false
	}
	if len(known) > 0 {
		name = known[0].name
	}

	return models.Medication{
		Name:      name,
		Dosage:    dose,
		Frequency: findFrequency(rest),
	}, true
}
