// Package sheetstest provides an in-memory sheets.Backend for tests.
package sheetstest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/site-ledger/internal/sheets"
)

type sheet struct {
	cells   map[int]map[int]any // row -> col -> value
	widths  []int
	formats []sheets.CellFormat
}

func (s *sheet) lastRow() int {
	last := 0
	for row, cols := range s.cells {
		if len(cols) > 0 && row > last {
			last = row
		}
	}
	return last
}

type spreadsheet struct {
	meta   sheets.Spreadsheet
	order  []string
	sheets map[string]*sheet
}

// Backend is a thread-safe in-memory sheets.Backend.
// The Err fields make the matching call fail; the counters record how often each call ran.
type Backend struct {
	mu     sync.Mutex
	seq    int
	byID   map[string]*spreadsheet
	titles map[string]string // title -> id

	CreateErr error
	AppendErr error
	FormatErr error
	FindErr   error
	OpenErr   error
	DeleteErr error

	// WriteErr, when set, is consulted by every WriteCells call; a non-nil result fails it.
	WriteErr func(sheetName, anchor string) error

	// BeforeCreate runs, unlocked, at the start of CreateSpreadsheet.
	BeforeCreate func()

	Creates   int
	Finds     int
	Opens     int
	Deletes   int
	Appends   int
	AddSheets int
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		byID:   make(map[string]*spreadsheet),
		titles: make(map[string]string),
	}
}

func (b *Backend) FindByTitle(ctx context.Context, title string) (*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Finds++
	if b.FindErr != nil {
		return nil, b.FindErr
	}
	id, ok := b.titles[title]
	if !ok {
		return nil, sheets.ErrNotFound
	}
	return b.snapshot(b.byID[id]), nil
}

func (b *Backend) Open(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Opens++
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	ss, err := b.get(spreadsheetID)
	if err != nil {
		return nil, err
	}
	return b.snapshot(ss), nil
}

func (b *Backend) DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes++
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	ss, err := b.get(spreadsheetID)
	if err != nil {
		return err
	}
	delete(b.byID, spreadsheetID)
	if b.titles[ss.meta.Title] == spreadsheetID {
		delete(b.titles, ss.meta.Title)
	}
	return nil
}

func (b *Backend) CreateSpreadsheet(ctx context.Context, title string, tabs []sheets.SheetSpec) (*sheets.Spreadsheet, error) {
	if b.BeforeCreate != nil {
		b.BeforeCreate()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Creates++
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.seq++
	id := fmt.Sprintf("sheet-%d", b.seq)
	ss := &spreadsheet{
		meta: sheets.Spreadsheet{
			ID:    id,
			Title: title,
			URL:   "memory://" + id,
		},
		sheets: make(map[string]*sheet),
	}
	for _, tab := range tabs {
		ss.order = append(ss.order, tab.Name)
		ss.sheets[tab.Name] = &sheet{cells: make(map[int]map[int]any)}
	}
	b.byID[id] = ss
	b.titles[title] = id
	return b.snapshot(ss), nil
}

func (b *Backend) AddSheet(ctx context.Context, spreadsheetID string, tab sheets.SheetSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AddSheets++
	ss, err := b.get(spreadsheetID)
	if err != nil {
		return err
	}
	if _, ok := ss.sheets[tab.Name]; ok {
		return fmt.Errorf("sheet %q already exists", tab.Name)
	}
	ss.order = append(ss.order, tab.Name)
	ss.sheets[tab.Name] = &sheet{cells: make(map[int]map[int]any)}
	return nil
}

func (b *Backend) WriteCells(ctx context.Context, spreadsheetID, sheetName, anchor string, rows [][]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WriteErr != nil {
		if err := b.WriteErr(sheetName, anchor); err != nil {
			return err
		}
	}
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return err
	}
	col, row, err := sheets.ParseCell(anchor)
	if err != nil {
		return err
	}
	for r, values := range rows {
		for c, v := range values {
			sh.set(row+r, col+c, v)
		}
	}
	return nil
}

func (b *Backend) AppendRow(ctx context.Context, spreadsheetID, sheetName string, values []any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Appends++
	if b.AppendErr != nil {
		return 0, b.AppendErr
	}
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return 0, err
	}
	row := sh.lastRow() + 1
	for c, v := range values {
		sh.set(row, c+1, v)
	}
	return row, nil
}

func (b *Backend) FormatCells(ctx context.Context, spreadsheetID, sheetName string, format sheets.CellFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FormatErr != nil {
		return b.FormatErr
	}
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return err
	}
	if _, _, _, _, err := sheets.ParseRange(format.Range); err != nil {
		return err
	}
	sh.formats = append(sh.formats, format)
	return nil
}

func (b *Backend) SetColumnWidths(ctx context.Context, spreadsheetID, sheetName string, widths []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return err
	}
	sh.widths = append([]int(nil), widths...)
	return nil
}

func (b *Backend) ListSpreadsheets(ctx context.Context, prefix string) ([]*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*sheets.Spreadsheet
	for title, id := range b.titles {
		if strings.HasPrefix(title, prefix) {
			out = append(out, b.snapshot(b.byID[id]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// Cell returns the value stored at an A1 reference, or nil.
func (b *Backend) Cell(spreadsheetID, sheetName, ref string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return nil
	}
	col, row, err := sheets.ParseCell(ref)
	if err != nil {
		return nil
	}
	return sh.cells[row][col]
}

// Row returns the values of one 1-based row, trimmed after the last set column.
func (b *Backend) Row(spreadsheetID, sheetName string, row int) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return nil
	}
	cols := sh.cells[row]
	last := 0
	for c := range cols {
		if c > last {
			last = c
		}
	}
	out := make([]any, last)
	for c, v := range cols {
		out[c-1] = v
	}
	return out
}

// RowCount returns the index of the last non-empty row of a sheet.
func (b *Backend) RowCount(spreadsheetID, sheetName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return 0
	}
	return sh.lastRow()
}

// Formats returns the formats applied to a sheet, in order.
func (b *Backend) Formats(spreadsheetID, sheetName string) []sheets.CellFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return nil
	}
	return append([]sheets.CellFormat(nil), sh.formats...)
}

// Widths returns the column widths of a sheet.
func (b *Backend) Widths(spreadsheetID, sheetName string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sh, err := b.sheet(spreadsheetID, sheetName)
	if err != nil {
		return nil
	}
	return append([]int(nil), sh.widths...)
}

// DeleteSheet removes a sheet, to simulate a damaged spreadsheet.
func (b *Backend) DeleteSheet(spreadsheetID, sheetName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ss, ok := b.byID[spreadsheetID]
	if !ok {
		return
	}
	delete(ss.sheets, sheetName)
	for i, n := range ss.order {
		if n == sheetName {
			ss.order = append(ss.order[:i], ss.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of spreadsheets.
func (b *Backend) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

func (s *sheet) set(row, col int, v any) {
	if s.cells[row] == nil {
		s.cells[row] = make(map[int]any)
	}
	s.cells[row][col] = v
}

func (b *Backend) get(id string) (*spreadsheet, error) {
	ss, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %q: %w", id, sheets.ErrNotFound)
	}
	return ss, nil
}

func (b *Backend) sheet(id, name string) (*sheet, error) {
	ss, err := b.get(id)
	if err != nil {
		return nil, err
	}
	sh, ok := ss.sheets[name]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %q has no sheet %q", id, name)
	}
	return sh, nil
}

func (b *Backend) snapshot(ss *spreadsheet) *sheets.Spreadsheet {
	out := ss.meta
	out.Sheets = append([]string(nil), ss.order...)
	return &out
}

var _ sheets.Backend = (*Backend)(nil)
