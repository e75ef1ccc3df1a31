package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"medparse/internal/export"
	"medparse/pkg/models"
)

const testSheetURL = "https://docs.google.com/spreadsheets/d/sheet-123/edit#gid=0"

type fakeSheets struct {
	mu       sync.Mutex
	calls    []string
	appended string
	values   map[string][][]interface{}
	titles   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		f.appended = string(body)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "batchUpdate")
		_, _ = w.Write([]byte(`{"replies":[{"addSheet":{"properties":{"sheetId":9,"title":"Results"}}}]}`))
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		_, _ = w.Write([]byte(`{}`))
	case strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "get values")
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.values[rng]})
	default:
		f.calls = append(f.calls, "get spreadsheet")
		sheets := []map[string]any{}
		for i, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t, "sheetId": i}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-123", "sheets": sheets})
	}
}

func newTestService(t *testing.T, fake *fakeSheets) *Service {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSheetsServiceWithClient(context.Background(), testSheetURL, srv.Client(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return s
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID(testSheetURL)
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", id)

	_, err = extractSpreadsheetID("https://example.com/not-a-sheet")
	assert.Error(t, err)
}

func TestColumnSpan(t *testing.T) {
	assert.Equal(t, "Results!A:O", columnSpan("Results", ""))
	assert.Equal(t, "Results!A1:O1", columnSpan("Results", "1"))
}

func TestWriteResults_CreatesSheetAndHeaders(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Other"}}
	s := newTestService(t, fake)
	assert.Equal(t, "sheet-123", s.SpreadsheetID())

	entries := []export.Entry{
		{Filename: "lab_report.txt", Result: &models.ParsingResult{ID: "r-1", ParsingMethod: "structured", Confidence: 0.9}},
		{Filename: "archive.zip", Err: errors.New("unsupported media type")},
	}
	require.NoError(t, s.WriteResults(context.Background(), entries, "Results"))

	assert.Equal(t, []string{"get spreadsheet", "batchUpdate", "get values", "update", "batchUpdate", "append"}, fake.calls)
	assert.Contains(t, fake.appended, "lab_report.txt")
	assert.Contains(t, fake.appended, "unsupported media type")
}

func TestWriteResults_ExistingHeaders(t *testing.T) {
	fake := &fakeSheets{
		titles: []string{"Results"},
		values: map[string][][]interface{}{"Results!A1:O1": {{"File"}}},
	}
	s := newTestService(t, fake)

	require.NoError(t, s.WriteResults(context.Background(), []export.Entry{{Filename: "a.txt", Err: errors.New("x")}}, "Results"))
	assert.Equal(t, []string{"get spreadsheet", "get values", "append"}, fake.calls)
}

func TestReadPatients(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]interface{}{
		"Patients!A:D": {
			{"File", "Age", "Gender", "Region"},
			{"Lab_Report.pdf", "45", "M", "in"},
			{"note.txt", "", "female"},
			{"bad.txt", "forty"},
			{"", "30"},
		},
	}}
	s := newTestService(t, fake)

	patients, err := s.ReadPatients(context.Background(), "Patients")
	require.NoError(t, err)

	assert.Equal(t, map[string]models.PatientContext{
		"lab_report.pdf": {Age: 45, Gender: "male", Region: "IN"},
		"note.txt":       {Gender: "female"},
	}, patients)
}

func TestReadPatients_EmptySheet(t *testing.T) {
	s := newTestService(t, &fakeSheets{})

	_, err := s.ReadPatients(context.Background(), "Patients")
	assert.Error(t, err)
}
