package history

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/model"
)

// SheetsLog appends summaries as rows of a Google Sheets tab.
// The first row holds Columns and is created when missing.
type SheetsLog struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger

	headerMu sync.Mutex
	headerOK bool
}

// NewSheetsLog authenticates with a service account credentials JSON.
// The spreadsheet must be shared with the service account.
func NewSheetsLog(ctx context.Context, cfg config.SheetsConfig, log *logger.Logger) (*SheetsLog, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: sheets spreadsheet id is required", model.ErrValidation)
	}
	if cfg.CredentialsJSON == "" {
		return nil, fmt.Errorf("%w: sheets credentials are required", model.ErrValidation)
	}

	jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to parse credentials: %w", err)
	}
	return newSheetsLog(ctx, oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx)), cfg, log)
}

func newSheetsLog(ctx context.Context, client *http.Client, cfg config.SheetsConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsLog, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to create service: %w", err)
	}

	name := cfg.SheetName
	if name == "" {
		name = "Sheet1"
	}
	return &SheetsLog{
		service:       svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		log:           log.WithComponent("sheets"),
	}, nil
}

func (l *SheetsLog) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(l.sheetName, "'", "''"), cells)
}

// Append adds one row, values interpreted as if typed by a user.
func (l *SheetsLog) Append(ctx context.Context, s model.CampaignSummary) error {
	if err := l.ensureHeader(ctx); err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]any{summaryRow(s)}}
	_, err := l.service.Spreadsheets.Values.Append(l.spreadsheetID, l.rangeOf("A1"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("%w: sheets append: %w", model.ErrPersistence, err)
	}
	return nil
}

// List reads every row below the header. Unparseable rows are skipped.
func (l *SheetsLog) List(ctx context.Context) ([]model.CampaignSummary, error) {
	resp, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.rangeOf("A2:H")).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets get: %w", err)
	}

	out := make([]model.CampaignSummary, 0, len(resp.Values))
	for i, row := range resp.Values {
		s, err := parseRow(row)
		if err != nil {
			l.log.Warn().Err(err).Int("row", i+2).Msg("skipping history row")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ensureHeader writes Columns into the first row, inserting a new row when
// the first one already holds data.
func (l *SheetsLog) ensureHeader(ctx context.Context) error {
	l.headerMu.Lock()
	defer l.headerMu.Unlock()
	if l.headerOK {
		return nil
	}

	resp, err := l.service.Spreadsheets.Values.Get(l.spreadsheetID, l.rangeOf("1:1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: sheets header: %w", model.ErrPersistence, err)
	}

	var first []string
	if len(resp.Values) > 0 {
		for _, v := range resp.Values[0] {
			first = append(first, strings.TrimSpace(fmt.Sprint(v)))
		}
	}

	switch {
	case len(first) >= 6 && slices.Equal(first[:6], Columns[:6]):
		l.headerOK = true
		return nil
	case len(first) > 0:
		if err := l.insertFirstRow(ctx); err != nil {
			return err
		}
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	_, err = l.service.Spreadsheets.Values.Update(l.spreadsheetID, l.rangeOf("A1"), &sheets.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("%w: sheets header: %w", model.ErrPersistence, err)
	}
	l.log.Info().Str("sheet", l.sheetName).Msg("created history header row")
	l.headerOK = true
	return nil
}

func (l *SheetsLog) insertFirstRow(ctx context.Context) error {
	ss, err := l.service.Spreadsheets.Get(l.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: sheets metadata: %w", model.ErrPersistence, err)
	}

	var sheetID int64 = -1
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == l.sheetName {
			sheetID = sh.Properties.SheetId
			break
		}
	}
	if sheetID < 0 {
		return fmt.Errorf("%w: sheet %q not found", model.ErrPersistence, l.sheetName)
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: 0,
					EndIndex:   1,
				},
			},
		}},
	}
	if _, err := l.service.Spreadsheets.BatchUpdate(l.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: sheets insert header row: %w", model.ErrPersistence, err)
	}
	return nil
}
