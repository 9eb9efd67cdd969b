// Package spreadsheet reads reference workbooks and writes discrepancy
// exports as xlsx.
package spreadsheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"invoicerecon/internal/domain"
	"invoicerecon/internal/invoice"
)

// HeaderResolver maps a header cell to its canonical field.
// *invoice.Normalizer satisfies it.
type HeaderResolver interface {
	FieldFor(key string) (invoice.Field, bool)
}

// Table is one worksheet read as header-keyed rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   []map[string]any
	// FirstRow is the worksheet row number of Rows[0].
	FirstRow int
}

// SheetNames lists the worksheets of an xlsx workbook in tab order.
func SheetNames(r io.Reader) ([]string, error) {
	f, err := open(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}

// ReadSheet reads one worksheet with its first row as header. An empty sheet
// name selects the first worksheet. Numeric cells under a date header are
// converted from Excel serials to ISO dates. Blank cells are kept as "" under
// headers the resolver knows, or under every header when resolver is nil.
func ReadSheet(r io.Reader, sheet string, resolver HeaderResolver) (*Table, error) {
	f, err := open(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet, err = resolveSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyReference, sheet)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	header := headerNames(rows[0])
	dateCols := make(map[int]bool)
	// known columns keep blank cells so the row still supplies the field.
	known := make(map[int]bool)
	for i, h := range header {
		if h == "" {
			continue
		}
		if resolver == nil {
			known[i] = true
			continue
		}
		if field, ok := resolver.FieldFor(h); ok {
			known[i] = true
			if kind, _ := invoice.KindOf(field); kind == invoice.KindDate {
				dateCols[i] = true
			}
		}
	}

	table := &Table{Sheet: sheet, Header: header, FirstRow: 2}
	nonEmpty := 0
	for _, row := range rows[1:] {
		m := make(map[string]any, len(header))
		filled := false
		for i, h := range header {
			if h == "" {
				continue
			}
			// GetRows drops trailing empty cells.
			cell := ""
			if i < len(row) {
				cell = strings.TrimSpace(row[i])
			}
			if cell == "" {
				if known[i] {
					m[h] = ""
				}
				continue
			}
			if dateCols[i] {
				cell = serialToDate(cell, date1904)
			}
			m[h] = cell
			filled = true
		}
		if filled {
			nonEmpty++
		}
		table.Rows = append(table.Rows, m)
	}
	if nonEmpty == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyReference, sheet)
	}
	return table, nil
}

func open(r io.Reader) (*excelize.File, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidWorkbook, err)
	}
	return f, nil
}

func resolveSheet(f *excelize.File, sheet string) (string, error) {
	names := f.GetSheetList()
	if len(names) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", domain.ErrSheetNotFound)
	}
	if sheet == "" {
		return names[0], nil
	}
	for _, n := range names {
		if n == sheet {
			return n, nil
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, sheet) {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrSheetNotFound, sheet)
}

// headerNames trims header cells and suffixes repeated names so no column is
// silently overwritten.
func headerNames(row []string) []string {
	seen := make(map[string]int, len(row))
	out := make([]string, len(row))
	for i, cell := range row {
		h := strings.TrimSpace(cell)
		if h == "" {
			continue
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func serialToDate(cell string, date1904 bool) string {
	serial, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return cell
	}
	return t.Format(invoice.DateLayout)
}
