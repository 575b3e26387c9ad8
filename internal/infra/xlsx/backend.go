// Package xlsx stores project spreadsheets as local .xlsx workbooks, one file per project.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/site-ledger/internal/sheets"
)

const ext = ".xlsx"

// Backend keeps every workbook under one directory. The spreadsheet title is stored
// in the workbook document properties; the file name is the spreadsheet ID.
type Backend struct {
	dir string
	mu  sync.Mutex
}

// New creates the directory if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("xlsx.New: create dir %q: %w", dir, err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) path(id string) string {
	return filepath.Join(b.dir, id)
}

func (b *Backend) handle(id string, f *excelize.File) (*sheets.Spreadsheet, error) {
	props, err := f.GetDocProps()
	if err != nil {
		return nil, fmt.Errorf("read doc props of %s: %w", id, err)
	}
	abs, err := filepath.Abs(b.path(id))
	if err != nil {
		abs = b.path(id)
	}
	return &sheets.Spreadsheet{
		ID:     id,
		Title:  props.Title,
		URL:    "file://" + filepath.ToSlash(abs),
		Sheets: f.GetSheetList(),
	}, nil
}

// scan opens every workbook and returns the handles accepted by keep.
func (b *Backend) scan(keep func(*sheets.Spreadsheet) bool) ([]*sheets.Spreadsheet, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", b.dir, err)
	}
	var out []*sheets.Spreadsheet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		f, err := excelize.OpenFile(b.path(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", e.Name(), err)
		}
		s, err := b.handle(e.Name(), f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (b *Backend) FindByTitle(ctx context.Context, title string) (*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found, err := b.scan(func(s *sheets.Spreadsheet) bool { return s.Title == title })
	if err != nil {
		return nil, fmt.Errorf("Backend.FindByTitle: %w", err)
	}
	if len(found) == 0 {
		return nil, sheets.ErrNotFound
	}
	return found[0], nil
}

func (b *Backend) Open(ctx context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := excelize.OpenFile(b.path(spreadsheetID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Backend.Open: spreadsheet %q: %w", spreadsheetID, sheets.ErrNotFound)
		}
		return nil, fmt.Errorf("Backend.Open: open %s: %w", spreadsheetID, err)
	}
	defer f.Close()
	s, err := b.handle(spreadsheetID, f)
	if err != nil {
		return nil, fmt.Errorf("Backend.Open: %w", err)
	}
	return s, nil
}

func (b *Backend) DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(b.path(spreadsheetID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("Backend.DeleteSpreadsheet: spreadsheet %q: %w", spreadsheetID, sheets.ErrNotFound)
		}
		return fmt.Errorf("Backend.DeleteSpreadsheet: %w", err)
	}
	return nil
}

func (b *Backend) ListSpreadsheets(ctx context.Context, prefix string) ([]*sheets.Spreadsheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all, err := b.scan(func(s *sheets.Spreadsheet) bool { return strings.HasPrefix(s.Title, prefix) })
	if err != nil {
		return nil, fmt.Errorf("Backend.ListSpreadsheets: %w", err)
	}
	return all, nil
}

func (b *Backend) CreateSpreadsheet(ctx context.Context, title string, tabs []sheets.SheetSpec) (*sheets.Spreadsheet, error) {
	if len(tabs) == 0 {
		return nil, errors.New("Backend.CreateSpreadsheet: at least one sheet is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fileName(title)
	if _, err := os.Stat(b.path(id)); err == nil {
		id = strings.TrimSuffix(id, ext) + "-" + uuid.NewString()[:8] + ext
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tabs[0].Name); err != nil {
		return nil, fmt.Errorf("Backend.CreateSpreadsheet: rename first sheet: %w", err)
	}
	for _, tab := range tabs[1:] {
		if _, err := f.NewSheet(tab.Name); err != nil {
			return nil, fmt.Errorf("Backend.CreateSpreadsheet: add sheet %q: %w", tab.Name, err)
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "site-ledger"}); err != nil {
		return nil, fmt.Errorf("Backend.CreateSpreadsheet: set title: %w", err)
	}
	if err := f.SaveAs(b.path(id)); err != nil {
		return nil, fmt.Errorf("Backend.CreateSpreadsheet: save %s: %w", id, err)
	}
	return b.handle(id, f)
}

// update opens a workbook, applies fn and saves it.
func (b *Backend) update(id string, fn func(f *excelize.File) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := excelize.OpenFile(b.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("spreadsheet %q: %w", id, sheets.ErrNotFound)
		}
		return fmt.Errorf("open %s: %w", id, err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func requireSheet(f *excelize.File, sheet string) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx == -1 {
		return fmt.Errorf("no sheet %q", sheet)
	}
	return nil
}

func (b *Backend) AddSheet(ctx context.Context, spreadsheetID string, tab sheets.SheetSpec) error {
	err := b.update(spreadsheetID, func(f *excelize.File) error {
		if requireSheet(f, tab.Name) == nil {
			return fmt.Errorf("sheet %q already exists", tab.Name)
		}
		_, err := f.NewSheet(tab.Name)
		return err
	})
	if err != nil {
		return fmt.Errorf("Backend.AddSheet: %w", err)
	}
	return nil
}

func (b *Backend) WriteCells(ctx context.Context, spreadsheetID, sheet, anchor string, rows [][]any) error {
	err := b.update(spreadsheetID, func(f *excelize.File) error {
		if err := requireSheet(f, sheet); err != nil {
			return err
		}
		col, row, err := excelize.CellNameToCoordinates(anchor)
		if err != nil {
			return err
		}
		for r, values := range rows {
			for c, v := range values {
				cell, err := excelize.CoordinatesToCellName(col+c, row+r)
				if err != nil {
					return err
				}
				if err := setValue(f, sheet, cell, v); err != nil {
					return fmt.Errorf("set %s: %w", cell, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Backend.WriteCells: %w", err)
	}
	return nil
}

func setValue(f *excelize.File, sheet, cell string, v any) error {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
		return f.SetCellFormula(sheet, cell, strings.TrimPrefix(s, "="))
	}
	return f.SetCellValue(sheet, cell, v)
}

func (b *Backend) AppendRow(ctx context.Context, spreadsheetID, sheet string, values []any) (int, error) {
	var row int
	err := b.update(spreadsheetID, func(f *excelize.File) error {
		if err := requireSheet(f, sheet); err != nil {
			return err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		row = lastNonEmpty(rows) + 1
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, row)
			if err != nil {
				return err
			}
			// Record values are data; a leading "=" stays text.
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Backend.AppendRow: %w", err)
	}
	return row, nil
}

func lastNonEmpty(rows [][]string) int {
	for i := len(rows) - 1; i >= 0; i-- {
		for _, v := range rows[i] {
			if v != "" {
				return i + 1
			}
		}
	}
	return 0
}

func (b *Backend) FormatCells(ctx context.Context, spreadsheetID, sheet string, format sheets.CellFormat) error {
	err := b.update(spreadsheetID, func(f *excelize.File) error {
		if err := requireSheet(f, sheet); err != nil {
			return err
		}
		start, end, _ := strings.Cut(format.Range, ":")
		if end == "" {
			end = start
		}

		style, err := f.NewStyle(toStyle(format))
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, start, end, style); err != nil {
			return err
		}
		if format.Merge && start != end {
			return f.MergeCell(sheet, start, end)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Backend.FormatCells: %w", err)
	}
	return nil
}

func toStyle(format sheets.CellFormat) *excelize.Style {
	style := &excelize.Style{}
	if format.Bold || format.FontSize > 0 || format.FontColor != nil {
		style.Font = &excelize.Font{Bold: format.Bold, Size: float64(format.FontSize)}
		if format.FontColor != nil {
			style.Font.Color = hexColor(format.FontColor)
		}
	}
	if format.Background != nil {
		style.Fill = excelize.Fill{Type: "pattern", Color: []string{hexColor(format.Background)}, Pattern: 1}
	}
	if format.Center {
		style.Alignment = &excelize.Alignment{Horizontal: "center"}
	}
	if format.NumberPattern != "" {
		pattern := numberFormat(format.NumberPattern)
		style.CustomNumFmt = &pattern
	}
	return style
}

// numberFormat quotes the currency symbol so Excel reads it as a literal.
func numberFormat(pattern string) string {
	if sym, rest, ok := strings.Cut(pattern, " "); ok && strings.ContainsAny(sym, "$") && !strings.HasPrefix(sym, `"`) {
		return `"` + sym + ` "` + rest
	}
	return pattern
}

func hexColor(c *sheets.Color) string {
	clamp := func(v float64) int {
		switch {
		case v <= 0:
			return 0
		case v >= 1:
			return 255
		default:
			return int(v*255 + 0.5)
		}
	}
	return fmt.Sprintf("#%02X%02X%02X", clamp(c.Red), clamp(c.Green), clamp(c.Blue))
}

func (b *Backend) SetColumnWidths(ctx context.Context, spreadsheetID, sheet string, widths []int) error {
	err := b.update(spreadsheetID, func(f *excelize.File) error {
		if err := requireSheet(f, sheet); err != nil {
			return err
		}
		for i, px := range widths {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return err
			}
			// Excel widths are in characters of the default font, about 7px each.
			if err := f.SetColWidth(sheet, col, col, float64(px)/7); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Backend.SetColumnWidths: %w", err)
	}
	return nil
}

// fileName derives a readable file name from a title.
func fileName(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if name == "" {
		name = uuid.NewString()
	}
	return name + ext
}

var _ sheets.Backend = (*Backend)(nil)
