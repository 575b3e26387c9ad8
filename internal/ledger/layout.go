package ledger

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// Sheet names inside every project spreadsheet.
const (
	SheetExpenses = "Expenses"
	SheetPayments = "Payments"
	SheetSummary  = "Summary"
)

const (
	// FirstDataRow is the first row after the banner and the header.
	FirstDataRow = 3

	// CurrencyPattern is applied to every amount cell.
	CurrencyPattern = `R$ #,##0.00`

	// DateLayout renders record dates as DD/MM/YYYY.
	DateLayout = "02/01/2006"
)

var (
	bannerColor = &sheets.Color{Red: 0.2, Green: 0.38, Blue: 0.57}
	white       = &sheets.Color{Red: 1, Green: 1, Blue: 1}
	totalColor  = &sheets.Color{Red: 1, Green: 0.75, Blue: 0}
)

var categoryLabels = map[domain.Category]string{
	domain.CategoryMaterials: "Materiais",
	domain.CategoryTools:     "Ferramentas",
	domain.CategoryTransport: "Transporte",
	domain.CategoryRent:      "Aluguel",
	domain.CategoryOther:     "Outros",
}

var roleLabels = map[domain.Role]string{
	domain.RoleMason:       "Pedreiro",
	domain.RoleHelper:      "Ajudante",
	domain.RoleElectrician: "Eletricista",
	domain.RolePlumber:     "Encanador",
	domain.RoleLaborer:     "Servente",
	domain.RoleOther:       "Outro",
}

// CategoryLabel is the pt-BR label written to the sheet.
func CategoryLabel(c domain.Category) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[domain.CategoryOther]
}

// RoleLabel is the pt-BR label written to the sheet.
func RoleLabel(r domain.Role) string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return roleLabels[domain.RoleOther]
}

// FormatDate renders d as DD/MM/YYYY.
func FormatDate(d civil.Date) string {
	return d.In(time.UTC).Format(DateLayout)
}

// sheetLayout describes how one sheet is initialized.
type sheetLayout struct {
	spec    sheets.SheetSpec
	banner  string // prefix, the project name is appended upper-cased
	header  []any
	widths  []int
	lastCol string
	body    []cellBlock
	formats []sheets.CellFormat
}

type cellBlock struct {
	anchor string
	rows   [][]any
}

var layouts = []sheetLayout{
	{
		spec:    sheets.SheetSpec{Name: SheetExpenses, Rows: 1000, Cols: 5},
		banner:  "GASTOS - OBRA: ",
		header:  []any{"Data", "Descrição do Item", "Categoria", "Valor (R$)", "Observações"},
		widths:  []int{100, 300, 150, 120, 300},
		lastCol: "E",
	},
	{
		spec:    sheets.SheetSpec{Name: SheetPayments, Rows: 1000, Cols: 5},
		banner:  "PAGAMENTOS - OBRA: ",
		header:  []any{"Data", "Nome do Funcionário", "Função", "Valor (R$)", "Observações"},
		widths:  []int{100, 200, 150, 120, 300},
		lastCol: "E",
	},
	{
		spec:    sheets.SheetSpec{Name: SheetSummary, Rows: 100, Cols: 2},
		banner:  "RESUMO - OBRA: ",
		widths:  []int{200, 150},
		lastCol: "B",
		body: []cellBlock{
			{anchor: "A3", rows: [][]any{
				{"Total Gastos:", "=SUM(" + SheetExpenses + "!D:D)"},
				{"Total Pagamentos:", "=SUM(" + SheetPayments + "!D:D)"},
			}},
			{anchor: "A6", rows: [][]any{
				{"TOTAL GERAL:", "=B3+B4"},
			}},
		},
		formats: []sheets.CellFormat{
			{Range: "B3:B4", Bold: true, NumberPattern: CurrencyPattern},
			{Range: "A6:B6", Bold: true, Background: totalColor},
			{Range: "B6", NumberPattern: CurrencyPattern},
		},
	},
}

// SheetSpecs returns the sheets every project spreadsheet is created with.
func SheetSpecs() []sheets.SheetSpec {
	specs := make([]sheets.SheetSpec, len(layouts))
	for i, l := range layouts {
		specs[i] = l.spec
	}
	return specs
}

func layoutFor(name string) (sheetLayout, bool) {
	for _, l := range layouts {
		if l.spec.Name == name {
			return l, true
		}
	}
	return sheetLayout{}, false
}

func (l sheetLayout) bannerText(project string) string {
	return l.banner + strings.ToUpper(project)
}
