// Package storage is the spreadsheet-shaped sink the pipeline reads its
// exclusion lists from and appends result rows to. Backends model a workbook
// as named sheets of rows of string cells.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is used when a range names no sheet.
const DefaultSheet = "Sheet1"

// ErrInvalidRange is returned by ParseRange.
var ErrInvalidRange = errors.New("storage: invalid range")

// Range addresses a block of a sheet in A1 notation. Columns and rows are
// 1-based; an EndCol or EndRow of 0 leaves that side open.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses "[Sheet!]A2[:B[10]]". Sheet names may be single-quoted.
func ParseRange(s string) (Range, error) {
	r := Range{Sheet: DefaultSheet}
	ref := s
	if i := strings.LastIndexByte(s, '!'); i >= 0 {
		r.Sheet = strings.Trim(s[:i], "'")
		ref = s[i+1:]
		if r.Sheet == "" {
			return Range{}, fmt.Errorf("%w: %q: empty sheet name", ErrInvalidRange, s)
		}
	}

	start, end, hasEnd := strings.Cut(ref, ":")
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, s, err)
	}
	r.StartCol, r.StartRow = col, row
	if !hasEnd {
		return r, nil
	}

	if col, row, err := excelize.CellNameToCoordinates(end); err == nil {
		r.EndCol, r.EndRow = col, row
	} else if col, err := excelize.ColumnNameToNumber(end); err == nil {
		r.EndCol = col
	} else {
		return Range{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, s, err)
	}
	if r.EndCol < r.StartCol || (r.EndRow != 0 && r.EndRow < r.StartRow) {
		return Range{}, fmt.Errorf("%w: %q: end before start", ErrInvalidRange, s)
	}
	return r, nil
}

// MustParseRange is ParseRange for constants.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Range) String() string {
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	s := quoteSheet(r.Sheet) + "!" + start
	switch {
	case r.EndCol != 0 && r.EndRow != 0:
		end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
		s += ":" + end
	case r.EndCol != 0:
		end, _ := excelize.ColumnNumberToName(r.EndCol)
		s += ":" + end
	}
	return s
}

func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!:") {
		return "'" + name + "'"
	}
	return name
}

// Backend is a workbook.
type Backend interface {
	// Read returns the rows of r, from StartRow through the last populated
	// row of the sheet (or EndRow). Each row holds the cells of columns
	// StartCol..EndCol with trailing blanks dropped, so an empty row is an
	// empty slice. A missing sheet reads as no rows.
	Read(ctx context.Context, r Range) ([][]string, error)
	// Append writes rows below the last populated row of r.Sheet, but never
	// above r.StartRow, with the first cell of each row in r.StartCol. The
	// sheet is created when missing. Either every row lands or none does.
	Append(ctx context.Context, r Range, rows [][]string) error
	Close() error
}

// Row is a numbered sheet row, the unit the row-store backends persist.
type Row struct {
	Num   int
	Cells []string
}

// Window cuts r out of a sheet given as numbered rows in any order.
func Window(rows []Row, r Range) [][]string {
	sorted := make([]Row, 0, len(rows))
	last := 0
	for _, row := range rows {
		if row.Num < r.StartRow || (r.EndRow != 0 && row.Num > r.EndRow) {
			continue
		}
		cells := cut(row.Cells, r)
		if len(cells) == 0 {
			continue
		}
		sorted = append(sorted, Row{Num: row.Num, Cells: cells})
		last = max(last, row.Num)
	}
	if len(sorted) == 0 {
		return [][]string{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Num < sorted[j].Num })

	out := make([][]string, last-r.StartRow+1)
	for i := range out {
		out[i] = []string{}
	}
	for _, row := range sorted {
		out[row.Num-r.StartRow] = row.Cells
	}
	return out
}

// Grid numbers a dense sheet whose first element is row 1.
func Grid(rows [][]string) []Row {
	out := make([]Row, len(rows))
	for i, cells := range rows {
		out[i] = Row{Num: i + 1, Cells: cells}
	}
	return out
}

// Place lays rows out for an append to r on a sheet whose last populated
// row is last.
func Place(last int, r Range, rows [][]string) []Row {
	start := max(last+1, r.StartRow)
	out := make([]Row, len(rows))
	for i, cells := range rows {
		padded := make([]string, r.StartCol-1, r.StartCol-1+len(cells))
		out[i] = Row{Num: start + i, Cells: append(padded, cells...)}
	}
	return out
}

// LastRow returns the highest row number holding a non-blank cell.
func LastRow(rows []Row) int {
	last := 0
	for _, row := range rows {
		if row.Num > last && len(trimRight(row.Cells)) > 0 {
			last = row.Num
		}
	}
	return last
}

func cut(cells []string, r Range) []string {
	if len(cells) < r.StartCol {
		return nil
	}
	end := len(cells)
	if r.EndCol != 0 && r.EndCol < end {
		end = r.EndCol
	}
	return trimRight(append([]string(nil), cells[r.StartCol-1:end]...))
}

func trimRight(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}
