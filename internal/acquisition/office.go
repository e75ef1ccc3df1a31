package acquisition

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"medparse/pkg/models"
)

// extractDocx reads word/document.xml from the archive. Table cells are
// separated by tabs and rows by newlines.
func extractDocx(content []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: open zip: %v", ErrOfficeDecode, err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: word/document.xml not found in archive", ErrOfficeDecode)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %v", ErrOfficeDecode, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var b, cell strings.Builder
	var inText bool
	cellDepth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrOfficeDecode, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out(&b, &cell, cellDepth).WriteByte('\t')
			case "br", "cr":
				out(&b, &cell, cellDepth).WriteByte('\n')
			case "tc":
				cellDepth++
				cell.Reset()
			}
		case xml.CharData:
			if inText {
				out(&b, &cell, cellDepth).Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cellDepth > 0 {
					cell.WriteByte(' ')
				} else {
					b.WriteByte('\n')
				}
			case "tc":
				cellDepth--
				b.WriteString(strings.Join(strings.Fields(cell.String()), " "))
				b.WriteByte('\t')
			case "tr":
				row := strings.TrimRight(b.String(), "\t")
				b.Reset()
				b.WriteString(row)
				b.WriteByte('\n')
			}
		}
	}

	return b.String(), nil
}

func out(b, cell *strings.Builder, cellDepth int) *strings.Builder {
	if cellDepth > 0 {
		return cell
	}
	return b
}

// docxImage returns the largest PNG or JPEG embedded in a DOCX, for OCR.
func docxImage(content []byte) ([]byte, string, bool) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, "", false
	}

	var best *zip.File
	var bestType string
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "word/media/") {
			continue
		}
		var mt string
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".png":
			mt = models.MediaTypePNG
		case ".jpg", ".jpeg":
			mt = models.MediaTypeJPEG
		default:
			continue
		}
		if best == nil || f.UncompressedSize64 > best.UncompressedSize64 {
			best, bestType = f, mt
		}
	}
	if best == nil {
		return nil, "", false
	}

	rc, err := best.Open()
	if err != nil {
		return nil, "", false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		return nil, "", false
	}
	return data, bestType, true
}

// extractDoc recovers text runs from a legacy Word binary. Word stores text
// either as 8-bit Windows-1252 or as UTF-16LE; the longer recovery wins.
func extractDoc(content []byte) (string, error) {
	narrow := printableRuns8(content)
	wide := printableRuns16(content)
	text := narrow
	if len(wide) > len(narrow) {
		text = wide
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no printable text runs", ErrOfficeDecode)
	}
	return text, nil
}

const minRunLength = 4

func isPrintableByte(c byte) bool {
	return c == '\t' || c == '\n' || c == '\r' || (c >= 0x20 && c < 0x7F) || c >= 0xA0
}

func printableRuns8(content []byte) string {
	var runs []string
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRunLength {
			s, err := charmap.Windows1252.NewDecoder().Bytes(content[start:end])
			if err == nil {
				runs = append(runs, strings.TrimSpace(string(s)))
			}
		}
		start = -1
	}
	for i, c := range content {
		if isPrintableByte(c) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(content))
	return joinRuns(runs)
}

func printableRuns16(content []byte) string {
	var runs []string
	var cur []uint16
	flush := func() {
		if len(cur) >= minRunLength {
			runs = append(runs, strings.TrimSpace(string(utf16.Decode(cur))))
		}
		cur = cur[:0]
	}
	for i := 0; i+1 < len(content); i += 2 {
		c := uint16(content[i]) | uint16(content[i+1])<<8
		if c < 0x100 && isPrintableByte(byte(c)) || isWideTextRune(c) {
			cur = append(cur, c)
			continue
		}
		flush()
	}
	flush()
	return joinRuns(runs)
}

// isWideTextRune accepts Latin Extended, Devanagari and general punctuation.
func isWideTextRune(c uint16) bool {
	return (c >= 0x100 && c < 0x250) || (c >= 0x900 && c < 0x980) || (c >= 0x2000 && c < 0x2070)
}

func joinRuns(runs []string) string {
	kept := runs[:0]
	for _, r := range runs {
		if len(r) >= minRunLength && strings.ContainsAny(r, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			kept = append(kept, r)
		}
	}
	return strings.Join(kept, "\n")
}

// rtfSkipDestinations are groups whose content is never document text.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "object": true, "header": true, "footer": true,
	"listtable": true, "listoverridetable": true, "themedata": true,
	"datastore": true, "xmlnstbl": true, "generator": true, "rsidtbl": true,
}

// extractRTF strips control words and groups from an RTF document.
func extractRTF(content []byte) (string, error) {
	s := string(content)
	if !strings.HasPrefix(strings.TrimSpace(s), "{\\rtf") {
		return "", fmt.Errorf("%w: missing {\\rtf header", ErrOfficeDecode)
	}

	type group struct {
		skip   bool
		ucSkip int
	}
	stack := []group{{ucSkip: 1}}
	var b strings.Builder
	pendingSkip := 0
	var ansi []byte

	flushANSI := func() {
		if len(ansi) > 0 {
			if decoded, err := charmap.Windows1252.NewDecoder().Bytes(ansi); err == nil {
				b.Write(decoded)
			}
			ansi = ansi[:0]
		}
	}

	for i := 0; i < len(s); i++ {
		top := &stack[len(stack)-1]
		c := s[i]

		switch c {
		case '{':
			flushANSI()
			stack = append(stack, group{skip: top.skip, ucSkip: top.ucSkip})
			if strings.HasPrefix(s[i+1:], "\\*") {
				stack[len(stack)-1].skip = true
			}
			continue
		case '}':
			flushANSI()
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		case '\r', '\n':
			continue
		case '\\':
		default:
			if pendingSkip > 0 {
				pendingSkip--
				continue
			}
			if !top.skip {
				flushANSI()
				b.WriteByte(c)
			}
			continue
		}

		// control sequence
		if i+1 >= len(s) {
			break
		}
		next := s[i+1]
		switch {
		case next == '\\' || next == '{' || next == '}':
			if !top.skip {
				flushANSI()
				b.WriteByte(next)
			}
			i++
			continue
		case next == '\'':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					if pendingSkip > 0 {
						pendingSkip--
					} else if !top.skip {
						ansi = append(ansi, byte(v))
					}
				}
			}
			i += 3
			continue
		case next == '~':
			if !top.skip {
				b.WriteByte(' ')
			}
			i++
			continue
		case !isASCIILetter(next):
			i++
			continue
		}

		j := i + 1
		for j < len(s) && isASCIILetter(s[j]) {
			j++
		}
		word := s[i+1 : j]
		k := j
		if k < len(s) && (s[k] == '-' || (s[k] >= '0' && s[k] <= '9')) {
			k++
			for k < len(s) && s[k] >= '0' && s[k] <= '9' {
				k++
			}
		}
		param := s[j:k]
		if k < len(s) && s[k] == ' ' {
			k++
		}
		i = k - 1

		if rtfSkipDestinations[word] {
			top.skip = true
			continue
		}
		if top.skip {
			continue
		}

		switch word {
		case "par", "line", "row", "sect", "page":
			flushANSI()
			b.WriteByte('\n')
		case "tab", "cell":
			flushANSI()
			b.WriteByte('\t')
		case "uc":
			if n, err := strconv.Atoi(param); err == nil {
				top.ucSkip = n
			}
		case "u":
			if n, err := strconv.Atoi(param); err == nil {
				if n < 0 {
					n += 65536
				}
				flushANSI()
				b.WriteRune(rune(n))
				pendingSkip = top.ucSkip
			}
		}
	}
	flushANSI()

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty RTF body", ErrOfficeDecode)
	}
	return text, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
