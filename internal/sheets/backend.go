package sheets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no spreadsheet carries the requested title.
var ErrNotFound = errors.New("spreadsheet not found")

// Spreadsheet is the handle of one backing spreadsheet.
type Spreadsheet struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	Sheets []string `json:"sheets,omitempty"`
}

// HasSheet reports whether the spreadsheet has a sheet with the given name.
func (s *Spreadsheet) HasSheet(name string) bool {
	for _, n := range s.Sheets {
		if n == name {
			return true
		}
	}
	return false
}

// SheetSpec sizes a sheet at creation time.
type SheetSpec struct {
	Name string
	Rows int
	Cols int
}

// Color is an RGB color with components in [0,1].
type Color struct {
	Red, Green, Blue float64
}

// CellFormat is a cosmetic format applied to an A1 range of one sheet.
type CellFormat struct {
	Range         string // e.g. "A1:E1" or "D7"
	Bold          bool
	FontSize      int
	FontColor     *Color
	Background    *Color
	Center        bool
	NumberPattern string // e.g. `R$ #,##0.00`
	Merge         bool
}

// Backend is the spreadsheet store the ledger writes to.
//
// WriteCells takes strings, numbers or formulas; there a string starting with "="
// is a formula and must stay live in the backend. AppendRow stores its values
// verbatim: a string is always text, whatever its first character.
type Backend interface {
	// FindByTitle returns the spreadsheet with exactly this title, or ErrNotFound.
	FindByTitle(ctx context.Context, title string) (*Spreadsheet, error)

	// Open returns the current handle of a spreadsheet by ID, or ErrNotFound
	// once it has been deleted.
	Open(ctx context.Context, spreadsheetID string) (*Spreadsheet, error)

	// CreateSpreadsheet creates a spreadsheet holding exactly the given sheets.
	CreateSpreadsheet(ctx context.Context, title string, tabs []SheetSpec) (*Spreadsheet, error)

	// DeleteSpreadsheet removes a spreadsheet so FindByTitle no longer returns it.
	DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error

	// AddSheet adds a sheet to an existing spreadsheet.
	AddSheet(ctx context.Context, spreadsheetID string, tab SheetSpec) error

	// WriteCells writes a block of rows starting at the anchor cell (e.g. "A1").
	WriteCells(ctx context.Context, spreadsheetID, sheet, anchor string, rows [][]any) error

	// AppendRow appends one row after the last non-empty row and returns its 1-based index.
	AppendRow(ctx context.Context, spreadsheetID, sheet string, values []any) (int, error)

	// FormatCells applies a cosmetic format.
	FormatCells(ctx context.Context, spreadsheetID, sheet string, format CellFormat) error

	// SetColumnWidths sets the widths of the first len(widths) columns, in pixels.
	SetColumnWidths(ctx context.Context, spreadsheetID, sheet string, widths []int) error

	// ListSpreadsheets returns every spreadsheet whose title starts with prefix.
	ListSpreadsheets(ctx context.Context, prefix string) ([]*Spreadsheet, error)
}
