package sheets

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnName converts a 1-based column number to its letters (1 -> A, 27 -> AA).
func ColumnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// CellName builds an A1 reference from 1-based column and row numbers.
func CellName(col, row int) string {
	return ColumnName(col) + strconv.Itoa(row)
}

// ParseCell splits an A1 reference into 1-based column and row numbers.
func ParseCell(cell string) (col, row int, err error) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	row, err = strconv.Atoi(cell[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	return col, row, nil
}

// ParseRange splits "A1:E1" (or a single cell "D7") into its corner cells.
func ParseRange(r string) (startCol, startRow, endCol, endRow int, err error) {
	from, to, found := strings.Cut(r, ":")
	startCol, startRow, err = ParseCell(from)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if !found {
		return startCol, startRow, startCol, startRow, nil
	}
	endCol, endRow, err = ParseCell(to)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return startCol, startRow, endCol, endRow, nil
}
