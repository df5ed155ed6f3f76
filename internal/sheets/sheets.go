// Package sheets mirrors the export file into a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/Kll222/tmdb-tracker/internal/export"
	"github.com/Kll222/tmdb-tracker/internal/media"
)

// Environment variables read by FromEnv.
const (
	CredentialsEnv   = "GOOGLE_CREDENTIALS"
	SpreadsheetIDEnv = "SPREADSHEET_ID"
)

// ErrNotConfigured is returned by FromEnv when a variable is missing.
var ErrNotConfigured = errors.New("spreadsheet sync not configured")

// Sheet is a worksheet that can be cleared and appended to.
type Sheet interface {
	Clear(ctx context.Context) error
	Append(ctx context.Context, rows [][]string) error
}

// Syncer replaces the sheet contents with the export file.
type Syncer struct {
	Sheet  Sheet
	Fs     afero.Fs
	Path   string
	Logger zerolog.Logger
}

// Sync clears the sheet and writes the header plus one row per exported
// record. It returns the number of records written.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	path := s.Path
	if path == "" {
		path = export.DefaultPath
	}
	records, err := export.Read(s.Fs, path)
	if err != nil {
		return 0, err
	}

	if err := s.Sheet.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clearing sheet: %w", err)
	}
	if len(records) == 0 {
		s.Logger.Info().Str("file", path).Msg("export is empty, sheet cleared")
		return 0, nil
	}

	if err := s.Sheet.Append(ctx, Rows(records)); err != nil {
		return 0, fmt.Errorf("appending rows: %w", err)
	}
	s.Logger.Info().Int("rows", len(records)).Msg("sheet updated")
	return len(records), nil
}

// Rows renders the header followed by one string row per record.
func Rows(records []media.Record) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, append([]string(nil), media.Columns...))
	for _, r := range records {
		rows = append(rows, r.Strings())
	}
	return rows
}

// GoogleSheet is the first worksheet of a Google spreadsheet.
type GoogleSheet struct {
	svc           *gsheets.Service
	spreadsheetID string
	title         string
}

// FromEnv builds a GoogleSheet from GOOGLE_CREDENTIALS (service-account JSON)
// and SPREADSHEET_ID.
func FromEnv(ctx context.Context) (*GoogleSheet, error) {
	creds := strings.TrimSpace(os.Getenv(CredentialsEnv))
	id := strings.TrimSpace(os.Getenv(SpreadsheetIDEnv))
	if creds == "" || id == "" {
		return nil, fmt.Errorf("%w: set %s and %s", ErrNotConfigured, CredentialsEnv, SpreadsheetIDEnv)
	}
	return NewGoogleSheet(ctx, id,
		option.WithCredentialsJSON([]byte(creds)),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// NewGoogleSheet opens the spreadsheet and resolves its first worksheet.
func NewGoogleSheet(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*GoogleSheet, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	ss, err := svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet %s: %w", spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return nil, fmt.Errorf("spreadsheet %s has no worksheets", spreadsheetID)
	}
	return &GoogleSheet{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		title:         ss.Sheets[0].Properties.Title,
	}, nil
}

// Title returns the worksheet title.
func (g *GoogleSheet) Title() string {
	return g.title
}

func (g *GoogleSheet) a1() string {
	return "'" + strings.ReplaceAll(g.title, "'", "''") + "'"
}

// Clear removes every value from the worksheet.
func (g *GoogleSheet) Clear(ctx context.Context) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, g.a1(), &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// Append adds rows after the last used row, stored as raw strings.
func (g *GoogleSheet) Append(ctx context.Context, rows [][]string) error {
	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = make([]any, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	_, err := g.svc.Spreadsheets.Values.
		Append(g.spreadsheetID, g.a1(), &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
