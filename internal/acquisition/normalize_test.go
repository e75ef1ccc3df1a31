package acquisition

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medparse/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unit spacing", "Glucose: 95 mg / dl", "Glucose: 95 mg/dL"},
		{"decimal comma", "Hb 12,5 g/dl", "Hb 12.5 g/dL"},
		{"comma delimited line kept", "a,b,c 1,2", "a,b,c 1,2"},
		{"column gap becomes tab", "Urea     32 mg/dl", "Urea\t32 mg/dL"},
		{"crlf and blank lines", "line one\r\n\r\n\r\n\r\nline two", "line one\n\nline two"},
		{"surrounding blanks", "   x   ", "x"},
		{"unit followed by word untouched", "5 mg / dlx", "5 mg / dlx"},
		{"trailing period", "Hb 12 g / dl.", "Hb 12 g/dL."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Glucose: 95 mg / dl (Normal: 70-110)",
		"WBC 7,5 x10^3 / ul",
		"Creatinine 88 µmol / l",
		"1,234,567 total",
		"Name\t\tValue   Unit\nHb  13,2   g / dl",
		"\ufeffBOM\u00a0and\u2028separators\u0085here",
		"ﬁbrinogen ３００ mg％",
		"mg / dl mg / dl\n\n\n\nmg/dl",
		"platelets 2,50,000 /cumm",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestFlattenJSON(t *testing.T) {
	doc := `{"patient":{"name":"A Sharma"},"results":[{"test":"Glucose","value":95,"unit":"mg/dl","range":"70-110"}]}`

	text, err := flattenJSON([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "name: A Sharma\nGlucose: 95 mg/dl (70-110)", text)

	_, err = flattenJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeText_Windows1252(t *testing.T) {
	// 0xB5 is the micro sign, 0xB0 the degree sign
	text := decodeText([]byte{'1', '2', ' ', 0xB5, 'g', ' ', 0xB0, 'C'})
	assert.Equal(t, "12 \u00b5g \u00b0C", text)

	assert.Equal(t, "plain", decodeText([]byte("\xEF\xBB\xBFplain")))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "en", detectLanguage("Glucose fasting"))
	assert.Equal(t, "hi", detectLanguage("रक्त शर्करा 95"))
	assert.Equal(t, "", detectLanguage("95 / 110"))
}

func TestExtractDocx(t *testing.T) {
	content := buildDocx(t, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		`<w:p><w:r><w:t>Lipid Profile Report</w:t></w:r></w:p>`+
		`<w:tbl><w:tr>`+
		`<w:tc><w:p><w:r><w:t>Total Cholesterol</w:t></w:r></w:p></w:tc>`+
		`<w:tc><w:p><w:r><w:t>180</w:t></w:r></w:p></w:tc>`+
		`</w:tr></w:tbl></w:body></w:document>`, nil)

	text, err := extractDocx(content)
	require.NoError(t, err)
	assert.Equal(t, "Lipid Profile Report\nTotal Cholesterol\t180", Normalize(text))

	_, err = extractDocx([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrOfficeDecode)
}

func TestDocxImage(t *testing.T) {
	small := []byte("small")
	large := []byte("a larger image payload")
	content := buildDocx(t, `<w:document/>`, map[string][]byte{
		"word/media/image1.png":  small,
		"word/media/image2.jpeg": large,
		"word/media/chart.emf":   []byte("ignored because it is not a raster format"),
	})

	data, mediaType, ok := docxImage(content)
	require.True(t, ok)
	assert.Equal(t, large, data)
	assert.Equal(t, models.MediaTypeJPEG, mediaType)
}

func TestExtractRTF(t *testing.T) {
	rtf := `{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0 Hemoglobin\tab 13.5 g/dl\par Platelets\tab 250\par}`

	text, err := extractRTF([]byte(rtf))
	require.NoError(t, err)
	assert.Equal(t, "Hemoglobin\t13.5 g/dL\nPlatelets\t250", Normalize(text))

	_, err = extractRTF([]byte("plain text"))
	assert.ErrorIs(t, err, ErrOfficeDecode)
}

func TestExtractRTF_EscapesAndUnicode(t *testing.T) {
	rtf := `{\rtf1\ansi\uc1 Caf\'e9 \u956? 5\{x\}\par}`

	text, err := extractRTF([]byte(rtf))
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9 \u03bc 5{x}", strings.TrimSpace(text))
}

func TestExtractDoc(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xD0, 0xCF, 0x11, 0xE0, 0x00, 0x01})
	buf.WriteString("Serum Creatinine 1.1 mg/dl")
	buf.Write([]byte{0x00, 0x02, 0x03})

	text, err := extractDoc(buf.Bytes())
	require.NoError(t, err)
	assert.Contains(t, text, "Serum Creatinine 1.1 mg/dl")

	_, err = extractDoc([]byte{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrOfficeDecode)
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		filename string
		content  []byte
		want     string
		wantErr  bool
	}{
		{"alias", "image/jpg", "", nil, models.MediaTypeJPEG, false},
		{"parameters stripped", "application/pdf; charset=binary", "", nil, models.MediaTypePDF, false},
		{"extension", "", "report.RTF", nil, models.MediaTypeRTF, false},
		{"octet-stream with extension", models.MediaTypeOctet, "values.csv", nil, models.MediaTypeCSV, false},
		{"sniffed pdf", models.MediaTypeOctet, "upload.bin", []byte("%PDF-1.4\n%âãÏÓ\n"), models.MediaTypePDF, false},
		{"sniffed text", "", "", []byte("hello world, plain text"), models.MediaTypeText, false},
		{"declared unsupported", "video/mp4", "clip.mp4", nil, "", true},
		{"nothing to go on", "", "", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMediaType(tt.declared, tt.filename, tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedMediaType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQualityScore(t *testing.T) {
	report := "Glucose Fasting: 95 mg/dL (Normal: 70-110)\nHbA1c: 5.4 %\nTotal Cholesterol: 180 mg/dL"

	assert.Equal(t, 0.0, QualityScore(""))
	assert.Greater(t, QualityScore(report), 0.6)
	assert.LessOrEqual(t, QualityScore(report), 1.0)
	assert.Less(t, QualityScore("hello"), 0.5)
}

func TestIntelligentFallback(t *testing.T) {
	got := IntelligentFallback("uploads/thyrocare_lipid_2024.pdf", ReasonOCRFailed, []string{"ocr: boom"})

	assert.Equal(t, models.AcquisitionIntelligentFallback, got.Method)
	assert.Equal(t, FallbackQuality, got.QualityScore)
	assert.Contains(t, got.Text, "AUTO-GENERATED PLACEHOLDER")
	assert.Contains(t, got.Text, "Laboratory report (Thyrocare)")
	assert.Contains(t, got.Text, "Lipid profile")
	assert.Contains(t, got.Text, "thyrocare_lipid_#.pdf")
	assert.Equal(t, -1, strings.IndexFunc(got.Text, unicode.IsDigit))
	assert.Equal(t, []string{"ocr: boom", "intelligent fallback: " + string(ReasonOCRFailed)}, got.Warnings)
}

func TestIntelligentFallback_NoKeywords(t *testing.T) {
	got := IntelligentFallback("", ReasonEmptyInput, nil)

	assert.NotEmpty(t, got.Text)
	assert.Contains(t, got.Text, "Document type: Medical document")
	assert.NotContains(t, got.Text, "Source file")
}

func buildDocx(t *testing.T, documentXML string, media map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)

	for name, data := range media {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
