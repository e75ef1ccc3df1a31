package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"medparse/pkg/models"
)

// Section keys
const (
	SectionGeneral         = "general"
	SectionPatient         = "patient"
	SectionChiefComplaint  = "chief_complaint"
	SectionHistory         = "history"
	SectionExamination     = "examination"
	SectionInvestigations  = "investigations"
	SectionDiagnosis       = "diagnosis"
	SectionTreatment       = "treatment"
	SectionRecommendations = "recommendations"
)

type sectionHeader struct {
	key     string
	pattern *regexp.Regexp
}

func header(key, alternatives string) sectionHeader {
	return sectionHeader{
		key:     key,
		pattern: regexp.MustCompile(`(?i)^[ \t]*(?:\d{1,2}[.)][ \t]*)?(?:` + alternatives + `)[ \t]*(?::|-[ \t]|$)`),
	}
}

// Checked in order; the first header matching a line wins.
var sectionHeaders = []sectionHeader{
	header(SectionPatient, `patient (?:details|information|info|particulars)|demographics`),
	header(SectionChiefComplaint, `chief complaints?|presenting complaints?|complaints?|c/o`),
	header(SectionHistory, `history of present(?:ing)? illness|past (?:medical )?history|medical history|history|hpi|hopi`),
	header(SectionExamination, `(?:physical|clinical|general|systemic) examination|on examination|examination|o/e|vitals`),
	header(SectionInvestigations, `investigations?|lab(?:oratory)? (?:results|findings|investigations|report)|test results|results`),
	header(SectionDiagnosis, `(?:final|provisional|clinical|working) diagnosis|diagnos[ie]s|impression|assessment`),
	header(SectionTreatment, `treatment(?: given| plan)?|medications?|prescription|rx`),
	header(SectionRecommendations, `recommendations?|advice|advised|follow[- ]?up|plan`),
}

// segmentSections splits text into named sections by header lines. Text
// before the first header goes to SectionGeneral. Repeated sections are
// concatenated.
func segmentSections(text string) map[string]string {
	sections := map[string]string{}
	current := SectionGeneral
	var buf []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if body != "" {
			if prev, ok := sections[current]; ok {
				body = prev + "\n" + body
			}
			sections[current] = body
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		key, rest, ok := matchHeader(line)
		if !ok {
			buf = append(buf, line)
			continue
		}
		flush()
		current = key
		if rest != "" {
			buf = append(buf, rest)
		}
	}
	flush()
	return sections
}

func matchHeader(line string) (key, rest string, ok bool) {
	for _, h := range sectionHeaders {
		if loc := h.pattern.FindStringIndex(line); loc != nil {
			return h.key, strings.TrimSpace(line[loc[1]:]), true
		}
	}
	return "", "", false
}

// hasNamedSection reports whether any header other than the preamble was found.
func hasNamedSection(sections map[string]string) bool {
	for k := range sections {
		if k != SectionGeneral {
			return true
		}
	}
	return false
}

var (
	rePatientName = regexp.MustCompile(`(?im)^[ \t]*(?:patient(?:'s)?[ \t]*name|name of (?:the )?patient|name|patient)[ \t]*[:\-][ \t]*([^\n|\t,;]+)`)
	reNameTitle   = regexp.MustCompile(`(?i)^(?:mr|mrs|ms|miss|master|baby|smt|shri)\.?[ \t]+`)
	reNameStop    = regexp.MustCompile(`(?i)\b(?:age|aged|sex|gender|uhid|mrn|id|dob|ref)\b|\d`)

	reAge       = regexp.MustCompile(`(?i)\bage(?:d)?\b(?:[ \t]*/[ \t]*(?:sex|gender))?[ \t]*[:\-]?[ \t]*(\d{1,3})\b`)
	reAgeSuffix = regexp.MustCompile(`(?i)\b(\d{1,3})[ \t]*(?:-?[ \t]*years?[ \t-]*old|yrs?[ \t]+old|y/o|yo)\b`)

	reGender      = regexp.MustCompile(`(?i)\b(?:sex|gender)\b[ \t]*[:\-][ \t]*(male|female|m|f)\b`)
	reGenderSlash = regexp.MustCompile(`(?i)\bage[ \t]*/[ \t]*(?:sex|gender)[ \t]*[:\-]?[ \t]*\d{1,3}[ \t]*(?:y|yrs?|years?)?[ \t]*/[ \t]*(male|female|m|f)\b`)
	reGenderAge   = regexp.MustCompile(`(?i)\b\d{1,3}[ \t]*(?:-?[ \t]*years?[ \t-]*old|y/o|yo)[ \t]+(male|female|man|woman|boy|girl)\b`)

	rePatientID = regexp.MustCompile(`(?i)\b(?:patient[ \t]*id|uhid|mrn|reg(?:istration)?\.?[ \t]*no\.?|ip[ \t]*no\.?|op[ \t]*no\.?)[ \t]*[:#\-]?[ \t]*([A-Za-z0-9][A-Za-z0-9/\-]{2,})`)
)

// extractPatient reads demographic fields from the document text. It
// returns nil when nothing was found.
func extractPatient(text string) *models.PatientInfo {
	var p models.PatientInfo

	for _, m := range rePatientName.FindAllStringSubmatch(text, -1) {
		if name := cleanName(m[1]); name != "" {
			p.Name = name
			break
		}
	}

	for _, re := range []*regexp.Regexp{reAge, reAgeSuffix} {
		if m := re.FindStringSubmatch(text); m != nil {
			if age, err := strconv.Atoi(m[1]); err == nil && age > 0 && age <= 120 {
				p.Age = age
				break
			}
		}
	}

	for _, re := range []*regexp.Regexp{reGender, reGenderSlash, reGenderAge} {
		if m := re.FindStringSubmatch(text); m != nil {
			p.Gender = normalizeGender(m[1])
			break
		}
	}

	for _, m := range rePatientID.FindAllStringSubmatch(text, -1) {
		if strings.ContainsAny(m[1], "0123456789") {
			p.PatientID = m[1]
			break
		}
	}

	if p == (models.PatientInfo{}) {
		return nil
	}
	return &p
}

func cleanName(s string) string {
	if loc := reNameStop.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.TrimSpace(reNameTitle.ReplaceAllString(strings.TrimSpace(s), ""))
	s = strings.Trim(s, " .:-/")
	if s == "" || !isASCIILetter(s[0]) {
		return ""
	}
	return s
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func normalizeGender(s string) string {
	switch strings.ToLower(s) {
	case "m", "male", "man", "boy":
		return "male"
	case "f", "female", "woman", "girl":
		return "female"
	}
	return ""
}

// sectionLines returns the non-empty lines of a section with list bullets removed.
func sectionLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(reBullet.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
