package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// Appender writes records as rows of a project spreadsheet.
type Appender struct {
	backend sheets.Backend
}

func NewAppender(backend sheets.Backend) *Appender {
	return &Appender{backend: backend}
}

// SheetFor returns the sheet a record kind is written to.
func SheetFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindExpense:
		return SheetExpenses, nil
	case domain.KindPayment:
		return SheetPayments, nil
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
}

// RowValues renders a record in the column order of its sheet.
func RowValues(rec *domain.Record) []any {
	date := FormatDate(rec.Date)
	amount := rec.Amount.InexactFloat64()
	if rec.Kind == domain.KindPayment {
		return []any{date, rec.WorkerName, RoleLabel(rec.Role), amount, rec.Notes}
	}
	return []any{date, rec.Description, CategoryLabel(rec.Category), amount, rec.Notes}
}

// Append adds one row for rec to the sheet matching its kind.
func (a *Appender) Append(ctx context.Context, s *sheets.Spreadsheet, rec *domain.Record) (*domain.AppendResult, error) {
	sheet, err := SheetFor(rec.Kind)
	if err != nil {
		return nil, domain.Wrap(domain.ErrAppend, fmt.Errorf("Append: %w", err))
	}

	row, err := a.backend.AppendRow(ctx, s.ID, sheet, RowValues(rec))
	if err != nil {
		return nil, domain.Wrap(domain.ErrAppend, fmt.Errorf("Append: append to %s: %w", sheet, err))
	}

	log := logger.FromContext(ctx)
	format := sheets.CellFormat{Range: fmt.Sprintf("D%d", row), NumberPattern: CurrencyPattern}
	if err := a.backend.FormatCells(ctx, s.ID, sheet, format); err != nil {
		log.Warn().Err(err).
			Str("sheet", sheet).
			Int("row", row).
			Msg("failed to apply currency format")
	}

	log.Info().
		Str("spreadsheet_id", s.ID).
		Str("sheet", sheet).
		Int("row", row).
		Msg("record appended")

	return &domain.AppendResult{
		RowIndex:    row,
		SheetName:   sheet,
		ResourceURL: s.URL,
	}, nil
}
