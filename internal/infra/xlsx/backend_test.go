package xlsx

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

func TestBackend_CreateFindAppend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)

	_, err = b.FindByTitle(ctx, "Project: Obra")
	require.ErrorIs(t, err, sheets.ErrNotFound)

	created, err := b.CreateSpreadsheet(ctx, "Project: Obra Do Joao", []sheets.SheetSpec{
		{Name: "Expenses"}, {Name: "Payments"}, {Name: "Summary"},
	})
	require.NoError(t, err)
	require.Equal(t, "project-obra-do-joao.xlsx", created.ID)
	require.Equal(t, []string{"Expenses", "Payments", "Summary"}, created.Sheets)
	require.True(t, strings.HasPrefix(created.URL, "file://"))

	found, err := b.FindByTitle(ctx, "Project: Obra Do Joao")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	require.NoError(t, b.WriteCells(ctx, created.ID, "Expenses", "A1", [][]any{
		{"GASTOS - OBRA: OBRA DO JOAO"},
		{"Data", "Descrição do Item", "Categoria", "Valor (R$)", "Observações"},
	}))
	require.NoError(t, b.WriteCells(ctx, created.ID, "Summary", "A3", [][]any{
		{"Total Gastos:", "=SUM(Expenses!D:D)"},
	}))

	row, err := b.AppendRow(ctx, created.ID, "Expenses", []any{"17/10/2026", "cimento", "Materiais", 200.0, ""})
	require.NoError(t, err)
	require.Equal(t, 3, row)
	row, err = b.AppendRow(ctx, created.ID, "Expenses", []any{"17/10/2026", "areia", "Materiais", 80.5, "obs"})
	require.NoError(t, err)
	require.Equal(t, 4, row)

	require.NoError(t, b.FormatCells(ctx, created.ID, "Expenses", sheets.CellFormat{
		Range: "A1:E1", Bold: true, FontSize: 14, Background: &sheets.Color{Red: 0.2, Green: 0.38, Blue: 0.57}, Merge: true,
	}))
	require.NoError(t, b.FormatCells(ctx, created.ID, "Expenses", sheets.CellFormat{Range: "D4", NumberPattern: `R$ #,##0.00`}))
	require.NoError(t, b.SetColumnWidths(ctx, created.ID, "Expenses", []int{100, 300}))

	f, err := excelize.OpenFile(filepath.Join(dir, created.ID))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Expenses", "B4")
	require.NoError(t, err)
	require.Equal(t, "areia", v)

	formula, err := f.GetCellFormula("Summary", "B3")
	require.NoError(t, err)
	require.Equal(t, "SUM(Expenses!D:D)", strings.TrimPrefix(formula, "="))

	merged, err := f.GetMergeCells("Expenses")
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, "A1", merged[0].GetStartAxis())

	width, err := f.GetColWidth("Expenses", "B")
	require.NoError(t, err)
	require.InDelta(t, 300.0/7, width, 0.01)
}

func TestBackend_AddSheetAndList(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	s, err := b.CreateSpreadsheet(ctx, "Project: B", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
	_, err = b.CreateSpreadsheet(ctx, "Project: A", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
	_, err = b.CreateSpreadsheet(ctx, "Budget", []sheets.SheetSpec{{Name: "Sheet"}})
	require.NoError(t, err)

	require.NoError(t, b.AddSheet(ctx, s.ID, sheets.SheetSpec{Name: "Summary"}))
	require.Error(t, b.AddSheet(ctx, s.ID, sheets.SheetSpec{Name: "Summary"}))

	list, err := b.ListSpreadsheets(ctx, "Project: ")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Project: A", list[0].Title)
	require.Equal(t, []string{"Expenses", "Summary"}, list[1].Sheets)
}

func TestBackend_SameFileNameGetsSuffix(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := b.CreateSpreadsheet(ctx, "Project: X", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
	second, err := b.CreateSpreadsheet(ctx, "Project X", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestBackend_MissingSpreadsheet(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = b.AppendRow(context.Background(), "nope.xlsx", "Expenses", []any{"x"})
	require.ErrorIs(t, err, sheets.ErrNotFound)
}

func TestBackend_AppendRowStoresTextNotFormulas(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)

	created, err := b.CreateSpreadsheet(ctx, "Project: Obra", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)

	row, err := b.AppendRow(ctx, created.ID, "Expenses", []any{
		"17/10/2026", `=HYPERLINK("http://evil","cimento")`, "+55 11", 200.0, "=1+1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, row)

	f, err := excelize.OpenFile(filepath.Join(dir, created.ID))
	require.NoError(t, err)
	defer f.Close()

	for ref, want := range map[string]string{"B1": `=HYPERLINK("http://evil","cimento")`, "C1": "+55 11", "E1": "=1+1"} {
		formula, err := f.GetCellFormula("Expenses", ref)
		require.NoError(t, err)
		require.Empty(t, formula, ref)

		v, err := f.GetCellValue("Expenses", ref)
		require.NoError(t, err)
		require.Equal(t, want, v, ref)
	}

	amount, err := f.GetCellValue("Expenses", "D1")
	require.NoError(t, err)
	require.Equal(t, "200", amount)
}

func TestBackend_OpenAndDelete(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	created, err := b.CreateSpreadsheet(ctx, "Project: Obra Torta", []sheets.SheetSpec{{Name: "Expenses"}, {Name: "Payments"}})
	require.NoError(t, err)

	opened, err := b.Open(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, opened)

	require.NoError(t, b.DeleteSpreadsheet(ctx, created.ID))

	_, err = b.Open(ctx, created.ID)
	require.ErrorIs(t, err, sheets.ErrNotFound)
	_, err = b.FindByTitle(ctx, "Project: Obra Torta")
	require.ErrorIs(t, err, sheets.ErrNotFound)
	require.ErrorIs(t, b.DeleteSpreadsheet(ctx, created.ID), sheets.ErrNotFound)
}

func TestBackend_WithLedger(t *testing.T) {
	ctx := context.Background()
	b, err := New(t.TempDir())
	require.NoError(t, err)

	r := ledger.NewResolver(b, nil)
	s, err := r.Resolve(ctx, "Obra Da Maria")
	require.NoError(t, err)
	again, err := r.Resolve(ctx, "Obra Da Maria")
	require.NoError(t, err)
	require.Equal(t, s.ID, again.ID)

	projects, err := ledger.ListProjects(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []ledger.ProjectInfo{{Name: "Obra Da Maria", URL: s.URL}}, projects)
}

func TestHelpers(t *testing.T) {
	require.Equal(t, "#335C91", hexColor(&sheets.Color{Red: 0.2, Green: 0.36, Blue: 0.57}))
	require.Equal(t, "#FFFFFF", hexColor(&sheets.Color{Red: 1, Green: 1, Blue: 1}))
	require.Equal(t, `"R$ "#,##0.00`, numberFormat(`R$ #,##0.00`))
	require.Equal(t, "0.00", numberFormat("0.00"))
	require.Equal(t, 0, lastNonEmpty(nil))
	require.Equal(t, 2, lastNonEmpty([][]string{{"a"}, {"", "b"}, {"", ""}}))
}
