package acquisition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns content as UTF-8. Valid UTF-8 is kept, UTF-16 with a
// BOM is transcoded, anything else is read as Windows-1252.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(bytes.TrimPrefix(content, utf8BOM))
	}
	decoder := xunicode.BOMOverride(charmap.Windows1252.NewDecoder())
	out, _, err := transform.Bytes(decoder, content)
	if err != nil {
		return strings.ToValidUTF8(string(content), "")
	}
	return string(out)
}

// flattenJSON renders a JSON document as "key: value" lines. Objects that
// look like a lab row (name plus value) become a single line.
func flattenJSON(content []byte) (string, error) {
	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return "", err
	}

	var lines []string
	flattenValue("", doc, &lines)
	return strings.Join(lines, "\n"), nil
}

var (
	rowNameKeys  = []string{"parameter", "name", "test", "analyte", "label"}
	rowValueKeys = []string{"value", "result", "observation"}
	rowUnitKeys  = []string{"unit", "units"}
	rowRangeKeys = []string{"range", "referencerange", "reference_range", "reference", "normalrange", "normal_range"}
)

func flattenValue(path string, v interface{}, lines *[]string) {
	switch val := v.(type) {
	case map[string]interface{}:
		if line, ok := labRowLine(val); ok {
			*lines = append(*lines, line)
			return
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(joinPath(path, k), val[k], lines)
		}
	case []interface{}:
		for i, item := range val {
			flattenValue(path+"["+strconv.Itoa(i)+"]", item, lines)
		}
	case nil:
	default:
		label := path
		if i := strings.LastIndex(path, "."); i >= 0 {
			label = path[i+1:]
		}
		*lines = append(*lines, fmt.Sprintf("%s: %v", label, val))
	}
}

func labRowLine(obj map[string]interface{}) (string, bool) {
	lower := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}
	name := firstScalar(lower, rowNameKeys)
	value := firstScalar(lower, rowValueKeys)
	if name == "" || value == "" {
		return "", false
	}
	line := name + ": " + value
	if unit := firstScalar(lower, rowUnitKeys); unit != "" {
		line += " " + unit
	}
	if rng := firstScalar(lower, rowRangeKeys); rng != "" {
		line += " (" + rng + ")"
	}
	return line, true
}

func firstScalar(obj map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// detectLanguage is a script-based guess: "hi" for mostly Devanagari text,
// "en" for Latin text and "" when there are no letters.
func detectLanguage(text string) string {
	var latin, devanagari int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			devanagari++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case latin == 0 && devanagari == 0:
		return ""
	case devanagari > latin:
		return "hi"
	default:
		return "en"
	}
}
