// Package export writes parsing results to an XLSX workbook with one sheet
// for result summaries, one for lab values and one for benchmarks.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

// Sheet names
const (
	SheetResults    = "Results"
	SheetLabValues  = "Lab Values"
	SheetBenchmarks = "Benchmarks"
)

// Entry is one processed document. Result is nil when Err is set.
type Entry struct {
	Filename string
	Result   *models.ParsingResult
	Err      error
}

// Status is "error", "degraded" or "success".
func (e Entry) Status() string {
	switch {
	case e.Err != nil || e.Result == nil:
		return "error"
	case e.Result.FallbackMethod:
		return "degraded"
	default:
		return "success"
	}
}

var (
	resultHeaders = []string{
		"File", "Result ID", "Status", "Parsing Method", "Category", "Layout", "Specialty",
		"Acquisition", "Confidence", "Lab Values", "Flagged", "Diagnoses", "Medications", "Message",
	}
	labHeaders = []string{
		"File", "Parameter", "LOINC", "Value", "Unit", "Range", "Status", "Auto Detected", "Confidence",
	}
	benchmarkHeaders = []string{
		"File", "Parameter", "Value", "Unit", "Percentile", "Age Group", "Age Group Mean", "Status",
		"Disease Cohort", "Cohort Position", "Region", "Regional Range", "Regional Status", "Dataset",
	}
)

// Writer builds workbooks.
type Writer struct {
	log zerolog.Logger
}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{log: logger.WithComponent("export")}
}

// Workbook builds the workbook for entries.
func (w *Writer) Workbook(entries []Entry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetResults); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetLabValues, SheetBenchmarks} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	results := [][]any{}
	labs := [][]any{}
	benchmarks := [][]any{}
	for _, e := range entries {
		results = append(results, ResultRow(e))
		if e.Result == nil {
			continue
		}
		for _, v := range e.Result.ExtractedData.LabValues {
			labs = append(labs, []any{
				e.Filename, v.Parameter, v.Code, v.Value, v.Unit, formatRange(v.ReferenceRange),
				string(v.Status), v.AutoDetected, v.Confidence,
			})
		}
		for _, b := range e.Result.Benchmarks {
			benchmarks = append(benchmarks, benchmarkRow(e.Filename, b))
		}
	}

	for _, sheet := range []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{SheetResults, resultHeaders, results},
		{SheetLabValues, labHeaders, labs},
		{SheetBenchmarks, benchmarkHeaders, benchmarks},
	} {
		if err := writeSheet(f, sheet.name, sheet.headers, sheet.rows); err != nil {
			return nil, err
		}
	}

	idx, _ := f.GetSheetIndex(SheetResults)
	f.SetActiveSheet(idx)

	w.log.Debug().
		Int("results", len(results)).
		Int("lab_values", len(labs)).
		Int("benchmarks", len(benchmarks)).
		Msg("Workbook built")

	return f, nil
}

// WriteXLSX builds the workbook and writes it to out.
func (w *Writer) WriteXLSX(out io.Writer, entries []Entry) error {
	start := time.Now()

	f, err := w.Workbook(entries)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	w.log.Info().
		Int("documents", len(entries)).
		Dur("elapsed", time.Since(start)).
		Msg("XLSX export written")
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header %s: %w", sheet, err)
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", r+2, sheet, err)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", last, 16)
	return nil
}

// ResultHeaders returns the column names of the Results sheet.
func ResultHeaders() []string {
	return append([]string(nil), resultHeaders...)
}

// ResultRow returns the Results sheet row for e.
func ResultRow(e Entry) []any {
	if e.Result == nil {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return []any{e.Filename, "", e.Status(), "", "", "", "", "", 0.0, 0, 0, "", "", msg}
	}

	r := e.Result
	flagged := 0
	for _, v := range r.ExtractedData.LabValues {
		if v.Flagged {
			flagged++
		}
	}
	diagnoses := make([]string, 0, len(r.ExtractedData.Diagnoses))
	for _, d := range r.ExtractedData.Diagnoses {
		diagnoses = append(diagnoses, d.Condition)
	}
	meds := make([]string, 0, len(r.ExtractedData.Medications))
	for _, m := range r.ExtractedData.Medications {
		meds = append(meds, strings.TrimSpace(m.Name+" "+m.Dosage))
	}

	return []any{
		e.Filename,
		r.ID,
		e.Status(),
		r.ParsingMethod,
		string(r.SourceMetadata.Category),
		string(r.SourceMetadata.Layout),
		r.SourceMetadata.Specialty,
		string(r.SourceMetadata.AcquisitionMethod),
		r.Confidence,
		len(r.ExtractedData.LabValues),
		flagged,
		strings.Join(diagnoses, "; "),
		strings.Join(meds, "; "),
		r.Message,
	}
}

func benchmarkRow(filename string, b models.BenchmarkRecord) []any {
	var disease, position, region, regionalRange, regionalStatus string
	if dc := b.DiseaseComparison; dc != nil {
		disease, position = dc.Disease, dc.Position
	}
	if rs := b.RegionalStandard; rs != nil {
		region, regionalRange, regionalStatus = rs.Region, formatRange(rs.Range), rs.Classification
	}
	return []any{
		filename, b.Parameter, b.PatientValue, b.Unit, b.Percentile, b.AgeGroup, b.AgeGroupMean, b.Status,
		disease, position, region, regionalRange, regionalStatus, b.Dataset,
	}
}

func formatRange(r models.ReferenceRange) string {
	if !r.Valid() {
		return ""
	}
	return fmt.Sprintf("%g-%g", r.Min, r.Max)
}
