package fetcher

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows above the header row (content factors carry a units row)
}

// ReadXLSX reads a sheet and returns all rows from SkipRows onward as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "xlsx: %s", path)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}

	return rows, nil
}

// EachXLSXRow reads a sheet, treats its first row after SkipRows as the header,
// and calls fn for every following row.
func EachXLSXRow(path string, opts XLSXOptions, fn func(h Header, record []string) error) error {
	rows, err := ReadXLSX(path, opts)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return eris.Errorf("xlsx: %s has no header row", path)
	}
	header := NewHeader(rows[0])
	for _, record := range rows[1:] {
		if err := fn(header, record); err != nil {
			return err
		}
	}
	return nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
