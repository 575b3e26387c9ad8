// Package gsheets implements the spreadsheet backend on Google Sheets, using Drive
// for lookup by title and sharing.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

const spreadsheetMIME = "application/vnd.google-apps.spreadsheet"

var _ sheets.Backend = (*Backend)(nil)

// Backend talks to the Sheets and Drive APIs.
type Backend struct {
	sheets    *sheetsapi.Service
	drive     *drive.Service
	shareWith []string

	mu       sync.Mutex
	sheetIDs map[string]map[string]int64 // spreadsheet ID -> sheet title -> sheet ID
}

// New builds a backend from service-account credentials JSON. Newly created
// spreadsheets are shared as writer with every address in shareWith.
func New(ctx context.Context, credentialsJSON []byte, shareWith []string) (*Backend, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheetsapi.SpreadsheetsScope, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("gsheets.New: parse credentials: %w", err)
	}
	return NewWithOptions(ctx, shareWith, option.WithHTTPClient(cfg.Client(ctx)))
}

// NewWithOptions builds a backend from explicit client options (endpoint, HTTP client).
func NewWithOptions(ctx context.Context, shareWith []string, opts ...option.ClientOption) (*Backend, error) {
	sheetsSvc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets.NewWithOptions: sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets.NewWithOptions: drive service: %w", err)
	}
	return &Backend{
		sheets:    sheetsSvc,
		drive:     driveSvc,
		shareWith: shareWith,
		sheetIDs:  make(map[string]map[string]int64),
	}, nil
}

func quoteQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func (b *Backend) remember(spreadsheetID string, props []*sheetsapi.Sheet) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make(map[string]int64, len(props))
	names := make([]string, 0, len(props))
	for _, s := range props {
		if s.Properties == nil {
			continue
		}
		ids[s.Properties.Title] = s.Properties.SheetId
		names = append(names, s.Properties.Title)
	}
	b.sheetIDs[spreadsheetID] = ids
	return names
}

func (b *Backend) sheetID(ctx context.Context, spreadsheetID, sheet string) (int64, error) {
	b.mu.Lock()
	id, ok := b.sheetIDs[spreadsheetID][sheet]
	b.mu.Unlock()
	if ok {
		return id, nil
	}
	if _, err := b.get(ctx, spreadsheetID); err != nil {
		return 0, err
	}
	b.mu.Lock()
	id, ok = b.sheetIDs[spreadsheetID][sheet]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in %s", sheet, spreadsheetID)
	}
	return id, nil
}

func (b *Backend) get(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	resp, err := b.sheets.Spreadsheets.Get(spreadsheetID).
		Fields("spreadsheetId,spreadsheetUrl,properties.title,sheets.properties(sheetId,title)").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}
	s := &sheets.Spreadsheet{
		ID:     resp.SpreadsheetId,
		URL:    resp.SpreadsheetUrl,
		Sheets: b.remember(resp.SpreadsheetId, resp.Sheets),
	}
	if resp.Properties != nil {
		s.Title = resp.Properties.Title
	}
	return s, nil
}

// FindByTitle returns the oldest non-trashed spreadsheet with exactly this title.
func (b *Backend) FindByTitle(ctx context.Context, title string) (*sheets.Spreadsheet, error) {
	q := fmt.Sprintf("name = %s and mimeType = '%s' and trashed = false", quoteQuery(title), spreadsheetMIME)
	list, err := b.drive.Files.List().Q(q).OrderBy("createdTime").PageSize(10).
		Fields("files(id,name)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gsheets.FindByTitle: list files: %w", err)
	}
	for _, f := range list.Files {
		if f.Name != title {
			continue
		}
		s, err := b.get(ctx, f.Id)
		if err != nil {
			return nil, fmt.Errorf("gsheets.FindByTitle: %w", err)
		}
		return s, nil
	}
	return nil, sheets.ErrNotFound
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Open re-reads a spreadsheet by ID. Trashed files count as deleted.
func (b *Backend) Open(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	f, err := b.drive.Files.Get(spreadsheetID).Fields("id,trashed").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gsheets.Open: %s: %w", spreadsheetID, sheets.ErrNotFound)
		}
		return nil, fmt.Errorf("gsheets.Open: get file %s: %w", spreadsheetID, err)
	}
	if f.Trashed {
		return nil, fmt.Errorf("gsheets.Open: %s is trashed: %w", spreadsheetID, sheets.ErrNotFound)
	}
	s, err := b.get(ctx, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("gsheets.Open: %w", err)
	}
	return s, nil
}

// DeleteSpreadsheet moves the spreadsheet to the Drive trash.
func (b *Backend) DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error {
	_, err := b.drive.Files.Update(spreadsheetID, &drive.File{Trashed: true}).Fields("id").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("gsheets.DeleteSpreadsheet: %s: %w", spreadsheetID, sheets.ErrNotFound)
		}
		return fmt.Errorf("gsheets.DeleteSpreadsheet: trash %s: %w", spreadsheetID, err)
	}
	b.mu.Lock()
	delete(b.sheetIDs, spreadsheetID)
	b.mu.Unlock()
	return nil
}

// CreateSpreadsheet creates the spreadsheet with exactly the given sheets and shares it.
func (b *Backend) CreateSpreadsheet(ctx context.Context, title string, tabs []sheets.SheetSpec) (*sheets.Spreadsheet, error) {
	req := &sheetsapi.Spreadsheet{Properties: &sheetsapi.SpreadsheetProperties{Title: title}}
	for _, tab := range tabs {
		req.Sheets = append(req.Sheets, &sheetsapi.Sheet{Properties: sheetProperties(tab)})
	}
	resp, err := b.sheets.Spreadsheets.Create(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gsheets.CreateSpreadsheet: create %q: %w", title, err)
	}
	s := &sheets.Spreadsheet{
		ID:     resp.SpreadsheetId,
		Title:  title,
		URL:    resp.SpreadsheetUrl,
		Sheets: b.remember(resp.SpreadsheetId, resp.Sheets),
	}
	b.share(ctx, s.ID)
	return s, nil
}

func sheetProperties(tab sheets.SheetSpec) *sheetsapi.SheetProperties {
	props := &sheetsapi.SheetProperties{Title: tab.Name}
	if tab.Rows > 0 || tab.Cols > 0 {
		props.GridProperties = &sheetsapi.GridProperties{
			RowCount:    int64(tab.Rows),
			ColumnCount: int64(tab.Cols),
		}
	}
	return props
}

// share grants writer access; a failure leaves the spreadsheet usable by the service account.
func (b *Backend) share(ctx context.Context, spreadsheetID string) {
	log := logger.FromContext(ctx)
	for _, email := range b.shareWith {
		perm := &drive.Permission{Type: "user", Role: "writer", EmailAddress: email}
		if _, err := b.drive.Permissions.Create(spreadsheetID, perm).SendNotificationEmail(false).Context(ctx).Do(); err != nil {
			log.Warn().Err(err).Str("spreadsheet_id", spreadsheetID).Str("email", email).Msg("failed to share spreadsheet")
		}
	}
}

// AddSheet adds a sheet to an existing spreadsheet.
func (b *Backend) AddSheet(ctx context.Context, spreadsheetID string, tab sheets.SheetSpec) error {
	resp, err := b.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{AddSheet: &sheetsapi.AddSheetRequest{Properties: sheetProperties(tab)}}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets.AddSheet: add %q: %w", tab.Name, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		b.mu.Lock()
		if b.sheetIDs[spreadsheetID] == nil {
			b.sheetIDs[spreadsheetID] = make(map[string]int64)
		}
		b.sheetIDs[spreadsheetID][tab.Name] = resp.Replies[0].AddSheet.Properties.SheetId
		b.mu.Unlock()
	}
	return nil
}

// WriteCells writes rows at anchor; values are parsed as if typed, so formulas stay live.
func (b *Backend) WriteCells(ctx context.Context, spreadsheetID, sheet, anchor string, rows [][]any) error {
	vr := &sheetsapi.ValueRange{Values: rows}
	_, err := b.sheets.Spreadsheets.Values.Update(spreadsheetID, quoteSheet(sheet)+"!"+anchor, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets.WriteCells: %s!%s: %w", sheet, anchor, err)
	}
	return nil
}

// AppendRow appends after the sheet's table and returns the row the API reports.
// Values are stored RAW, so text that looks like a formula stays text.
func (b *Backend) AppendRow(ctx context.Context, spreadsheetID, sheet string, values []any) (int, error) {
	vr := &sheetsapi.ValueRange{Values: [][]any{values}}
	resp, err := b.sheets.Spreadsheets.Values.Append(spreadsheetID, quoteSheet(sheet)+"!A1", vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("gsheets.AppendRow: %s: %w", sheet, err)
	}
	if resp.Updates == nil {
		return 0, fmt.Errorf("gsheets.AppendRow: %s: response has no updated range", sheet)
	}
	row, err := rowOf(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, fmt.Errorf("gsheets.AppendRow: %w", err)
	}
	return row, nil
}

// rowOf extracts the first row of an updated range such as "'Gastos'!A7:E7".
func rowOf(updatedRange string) (int, error) {
	ref := updatedRange
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		ref = ref[i+1:]
	}
	ref, _, _ = strings.Cut(ref, ":")
	_, row, err := sheets.ParseCell(ref)
	if err != nil {
		return 0, fmt.Errorf("parse updated range %q: %w", updatedRange, err)
	}
	return row, nil
}

// FormatCells applies the format with a single batch update.
func (b *Backend) FormatCells(ctx context.Context, spreadsheetID, sheet string, format sheets.CellFormat) error {
	id, err := b.sheetID(ctx, spreadsheetID, sheet)
	if err != nil {
		return fmt.Errorf("gsheets.FormatCells: %w", err)
	}
	grid, err := gridRange(id, format.Range)
	if err != nil {
		return fmt.Errorf("gsheets.FormatCells: %w", err)
	}
	requests := formatRequests(grid, format)
	if len(requests) == 0 {
		return nil
	}
	_, err = b.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets.FormatCells: %s!%s: %w", sheet, format.Range, err)
	}
	return nil
}

func gridRange(sheetID int64, a1 string) (*sheetsapi.GridRange, error) {
	sc, sr, ec, er, err := sheets.ParseRange(a1)
	if err != nil {
		return nil, err
	}
	return &sheetsapi.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(sr - 1),
		EndRowIndex:      int64(er),
		StartColumnIndex: int64(sc - 1),
		EndColumnIndex:   int64(ec),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}, nil
}

func toColor(c *sheets.Color) *sheetsapi.Color {
	return &sheetsapi.Color{
		Red:             c.Red,
		Green:           c.Green,
		Blue:            c.Blue,
		ForceSendFields: []string{"Red", "Green", "Blue"},
	}
}

func formatRequests(grid *sheetsapi.GridRange, format sheets.CellFormat) []*sheetsapi.Request {
	cf := &sheetsapi.CellFormat{}
	var fields []string
	if format.Bold || format.FontSize > 0 || format.FontColor != nil {
		cf.TextFormat = &sheetsapi.TextFormat{}
		if format.Bold {
			cf.TextFormat.Bold = true
			fields = append(fields, "userEnteredFormat.textFormat.bold")
		}
		if format.FontSize > 0 {
			cf.TextFormat.FontSize = int64(format.FontSize)
			fields = append(fields, "userEnteredFormat.textFormat.fontSize")
		}
		if format.FontColor != nil {
			cf.TextFormat.ForegroundColor = toColor(format.FontColor)
			fields = append(fields, "userEnteredFormat.textFormat.foregroundColor")
		}
	}
	if format.Background != nil {
		cf.BackgroundColor = toColor(format.Background)
		fields = append(fields, "userEnteredFormat.backgroundColor")
	}
	if format.Center {
		cf.HorizontalAlignment = "CENTER"
		fields = append(fields, "userEnteredFormat.horizontalAlignment")
	}
	if format.NumberPattern != "" {
		cf.NumberFormat = &sheetsapi.NumberFormat{Type: "CURRENCY", Pattern: format.NumberPattern}
		fields = append(fields, "userEnteredFormat.numberFormat")
	}

	var requests []*sheetsapi.Request
	if format.Merge {
		requests = append(requests, &sheetsapi.Request{
			MergeCells: &sheetsapi.MergeCellsRequest{Range: grid, MergeType: "MERGE_ALL"},
		})
	}
	if len(fields) > 0 {
		requests = append(requests, &sheetsapi.Request{
			RepeatCell: &sheetsapi.RepeatCellRequest{
				Range:  grid,
				Cell:   &sheetsapi.CellData{UserEnteredFormat: cf},
				Fields: strings.Join(fields, ","),
			},
		})
	}
	return requests
}

// SetColumnWidths sets pixel widths starting at column A.
func (b *Backend) SetColumnWidths(ctx context.Context, spreadsheetID, sheet string, widths []int) error {
	id, err := b.sheetID(ctx, spreadsheetID, sheet)
	if err != nil {
		return fmt.Errorf("gsheets.SetColumnWidths: %w", err)
	}
	requests := make([]*sheetsapi.Request, 0, len(widths))
	for i, w := range widths {
		requests = append(requests, &sheetsapi.Request{
			UpdateDimensionProperties: &sheetsapi.UpdateDimensionPropertiesRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:         id,
					Dimension:       "COLUMNS",
					StartIndex:      int64(i),
					EndIndex:        int64(i + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
				Properties: &sheetsapi.DimensionProperties{PixelSize: int64(w)},
				Fields:     "pixelSize",
			},
		})
	}
	if len(requests) == 0 {
		return nil
	}
	_, err = b.sheets.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsheets.SetColumnWidths: %s: %w", sheet, err)
	}
	return nil
}

// ListSpreadsheets pages through Drive for spreadsheets whose title starts with prefix.
// Sheet names are not fetched.
func (b *Backend) ListSpreadsheets(ctx context.Context, prefix string) ([]*sheets.Spreadsheet, error) {
	q := fmt.Sprintf("mimeType = '%s' and trashed = false", spreadsheetMIME)
	if prefix != "" {
		q += " and name contains " + quoteQuery(prefix)
	}
	var out []*sheets.Spreadsheet
	err := b.drive.Files.List().Q(q).OrderBy("name").PageSize(100).
		Fields("nextPageToken,files(id,name,webViewLink)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				// "contains" matches word prefixes anywhere in the name.
				if !strings.HasPrefix(f.Name, prefix) {
					continue
				}
				out = append(out, &sheets.Spreadsheet{ID: f.Id, Title: f.Name, URL: f.WebViewLink})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("gsheets.ListSpreadsheets: %w", err)
	}
	return out, nil
}
