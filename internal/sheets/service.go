package sheets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"medparse/internal/export"
	"medparse/internal/logger"
	"medparse/pkg/models"
)

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// NewSheetsService creates a Google Sheets service authenticated with the
// service account in GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	var (
		creds []byte
		err   error
	)
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	return NewSheetsServiceWithClient(ctx, sheetURL, config.Client(ctx))
}

// NewSheetsServiceWithClient creates a service using an already
// authenticated HTTP client. Extra options, such as an endpoint override,
// are passed to the API client.
func NewSheetsServiceWithClient(ctx context.Context, sheetURL string, client *http.Client, opts ...option.ClientOption) (*Service, error) {
	const op = "NewSheetsServiceWithClient"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// SpreadsheetID returns the ID parsed from the sheet URL.
func (s *Service) SpreadsheetID() string {
	return s.spreadsheetID
}

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

func headers() []string {
	return append(export.ResultHeaders(), "Processed At")
}

// columnSpan returns the A1 range of the header columns, e.g. "Results!A:O".
func columnSpan(sheetName string, row string) string {
	last, _ := excelize.ColumnNumberToName(len(headers()))
	if row == "" {
		return fmt.Sprintf("%s!A:%s", sheetName, last)
	}
	return fmt.Sprintf("%s!A%s:%s%s", sheetName, row, last, row)
}

// WriteResults appends one row per entry to sheetName, creating the sheet
// and its header row when missing.
func (s *Service) WriteResults(ctx context.Context, entries []export.Entry, sheetName string) error {
	const op = "WriteResults"

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(entries)).
		Msg("Writing parsing results to Google Sheet")

	if err := s.ensureSheetWithHeaders(ctx, sheetName); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	processedAt := time.Now().Format("2006-01-02 15:04:05")
	values := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		values = append(values, append(export.ResultRow(e), processedAt))
	}

	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		columnSpan(sheetName, ""),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(values)).
		Msg("Successfully wrote parsing results to Google Sheet")

	return nil
}

func (s *Service) ensureSheetWithHeaders(ctx context.Context, sheetName string) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var (
		sheetExists bool
		sheetID     int64
	)
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
			sheetID = resp.Replies[0].AddSheet.Properties.SheetId
		}
	}

	headerRange := columnSpan(sheetName, "1")
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	s.log.Info().Str("sheet", sheetName).Msg("Adding headers to sheet")

	row := make([]interface{}, 0, len(headers()))
	for _, h := range headers() {
		row = append(row, h)
	}
	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{row}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// formatHeaders makes the header row bold and auto-sizes the columns.
func (s *Service) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	cols := int64(len(headers()))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   cols,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   cols,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}
	return nil
}

// ReadRange reads values from a specified range in the spreadsheet
func (s *Service) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	const op = "ReadRange"

	s.log.Debug().
		Str("range", rangeSpec).
		Msg("Reading range from spreadsheet")

	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read range %s: %w", op, rangeSpec, err)
	}

	s.log.Debug().
		Int("rows", len(resp.Values)).
		Str("range", rangeSpec).
		Msg("Successfully read range from spreadsheet")

	return resp.Values, nil
}

// ReadPatients reads a patient manifest from sheetName. Columns are
// A=File, B=Age, C=Gender, D=Region; the first row is a header. Rows that
// cannot be parsed are skipped with a warning. Keys are lower-cased
// filenames.
func (s *Service) ReadPatients(ctx context.Context, sheetName string) (map[string]models.PatientContext, error) {
	const op = "ReadPatients"

	values, err := s.ReadRange(ctx, sheetName+"!A:D")
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read %s sheet: %w", op, sheetName, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %s sheet is empty", op, sheetName)
	}

	patients := make(map[string]models.PatientContext, len(values)-1)
	for i, row := range values[1:] {
		rowNum := i + 2

		file, patient, err := parsePatientRow(row)
		if err != nil {
			s.log.Warn().
				Err(err).
				Int("row", rowNum).
				Str("sheet", sheetName).
				Msg("Skipping patient row")
			continue
		}
		patients[strings.ToLower(file)] = patient
	}

	s.log.Info().
		Int("total_rows", len(values)-1).
		Int("patients", len(patients)).
		Str("sheet", sheetName).
		Msg("Patient manifest read")

	return patients, nil
}

func parsePatientRow(row []interface{}) (string, models.PatientContext, error) {
	cell := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}

	var p models.PatientContext
	file := cell(0)
	if file == "" {
		return "", p, fmt.Errorf("missing file name")
	}

	if age := cell(1); age != "" {
		n, err := strconv.Atoi(age)
		if err != nil || n < 0 || n > 130 {
			return "", p, fmt.Errorf("invalid age %q", age)
		}
		p.Age = n
	}

	switch g := strings.ToLower(cell(2)); g {
	case "", "male", "female":
		p.Gender = g
	case "m":
		p.Gender = "male"
	case "f":
		p.Gender = "female"
	default:
		return "", p, fmt.Errorf("invalid gender %q", g)
	}

	p.Region = strings.ToUpper(cell(3))
	return file, p, nil
}
