package decode

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// decodeXLSX reads the first sheet of a workbook. Cells are read raw so
// the number formats of the dealer's workbook never leak into values;
// numbers are then rendered with at most 15 significant digits like Excel
// shows them. Date cells arrive as serial numbers.
func decodeXLSX(ctx context.Context, path string, _ Options) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, corrupt(path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, corrupt(path, errors.New("workbook has no sheets"))
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, corrupt(path, fmt.Errorf("read sheet %q: %w", sheet, err))
	}

	table := &RawTable{}
	for i, row := range rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j, cell := range row {
			row[j] = numericCell(f, sheet, i, j, cell)
		}
		if i == 0 {
			table.Header = row
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// numericCell rewrites binary float noise ("12.300000000000001") for
// number cells. Text cells holding digits, such as zero-padded article
// codes, are left alone.
func numericCell(f *excelize.File, sheet string, row, col int, value string) string {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	formatted := formatNumber(v)
	if formatted == value {
		return value
	}

	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return value
	}
	typ, err := f.GetCellType(sheet, ref)
	if err != nil {
		return value
	}
	if typ != excelize.CellTypeNumber && typ != excelize.CellTypeUnset {
		return value
	}
	return formatted
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'g', 15, 64)
	if p, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(p, 'f', -1, 64)
	}
	return s
}
