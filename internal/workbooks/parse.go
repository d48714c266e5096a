package workbooks

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// ParseFile reads every sheet of the workbook at path.
func ParseFile(path string) (*table.Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, dasherr.NewParse(path, "", err)
	}
	defer f.Close()
	return parse(f, path)
}

// ParseBytes reads every sheet of an in-memory workbook. name labels errors.
func ParseBytes(name string, data []byte) (*table.Workbook, error) {
	if len(data) == 0 {
		return nil, dasherr.NewParse(name, "", fmt.Errorf("empty upload"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, dasherr.NewParse(name, "", err)
	}
	defer f.Close()
	return parse(f, name)
}

func parse(f *excelize.File, name string) (*table.Workbook, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, dasherr.NewParse(name, "", fmt.Errorf("workbook has no sheets"))
	}
	r := &sheetReader{f: f, dateStyles: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		r.date1904 = *props.Date1904
	}
	tables := make([]*table.Table, 0, len(sheets))
	for _, sheet := range sheets {
		t, err := r.read(sheet)
		if err != nil {
			return nil, dasherr.NewParse(name, sheet, err)
		}
		tables = append(tables, t)
	}
	wb, err := table.NewWorkbook(tables...)
	if err != nil {
		return nil, dasherr.NewParse(name, "", err)
	}
	return wb, nil
}

type sheetReader struct {
	f          *excelize.File
	date1904   bool
	dateStyles map[int]bool
}

// read loads one sheet. The first non-empty row is the header; empty rows
// after it are skipped.
func (r *sheetReader) read(sheet string) (*table.Table, error) {
	rowsIter, err := r.f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer rowsIter.Close()

	var (
		header []string
		width  int
		rows   []table.Row
		rowIdx int
	)
	for rowsIter.Next() {
		rowIdx++
		vals, err := rowsIter.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if blank(vals) {
			continue
		}
		if header == nil {
			header = vals
			width = len(vals)
			continue
		}
		row := make(table.Row, len(vals))
		for c, raw := range vals {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err != nil {
				return nil, err
			}
			v, err := r.cell(sheet, cell, raw)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}
			row[c] = v
		}
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	}
	if err := rowsIter.Error(); err != nil {
		return nil, err
	}
	return table.New(sheet, headerNames(header, width), rows), nil
}

// cell converts a raw cell string to a typed value using the stored cell type
// and, for numbers, the number format.
func (r *sheetReader) cell(sheet, cell, raw string) (table.Value, error) {
	typ, err := r.f.GetCellType(sheet, cell)
	if err != nil {
		return table.Value{}, err
	}
	switch typ {
	case excelize.CellTypeError:
		return table.Missing(), nil
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return table.Text("TRUE"), nil
		}
		return table.Text("FALSE"), nil
	case excelize.CellTypeDate:
		if t, ok := table.ParseDate(raw); ok {
			return table.Date(t), nil
		}
		return table.Text(raw), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return table.Text(raw), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return table.Text(raw), nil
	}
	isDate, err := r.isDateCell(sheet, cell)
	if err != nil {
		return table.Value{}, err
	}
	if isDate {
		t, err := excelize.ExcelDateToTime(f, r.date1904)
		if err == nil {
			return table.Date(t), nil
		}
	}
	return table.Number(f), nil
}

func (r *sheetReader) isDateCell(sheet, cell string) (bool, error) {
	idx, err := r.f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, err
	}
	if isDate, ok := r.dateStyles[idx]; ok {
		return isDate, nil
	}
	style, err := r.f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	isDate := builtinDateFormat(style.NumFmt)
	if !isDate && style.CustomNumFmt != nil {
		isDate = customDateFormat(*style.CustomNumFmt)
	}
	r.dateStyles[idx] = isDate
	return isDate, nil
}

// builtinDateFormat reports whether a built-in number format id renders dates,
// including the East Asian locale ranges.
func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// customDateFormat looks for year or day tokens outside quoted literals and
// bracketed sections.
func customDateFormat(code string) bool {
	inQuote, inBracket := false, false
	for _, ch := range strings.ToLower(code) {
		switch {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[':
			inBracket = true
		case ch == ']':
			inBracket = false
		case inBracket:
		case ch == 'y', ch == 'd':
			return true
		}
	}
	return false
}

func blank(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// headerNames names width columns from the header row. Empty names become
// "Unnamed: i" and repeated names get ".1", ".2" suffixes.
func headerNames(raw []string, width int) []string {
	names := make([]string, width)
	taken := make(map[string]bool, width)
	counts := make(map[string]int, width)
	for i := 0; i < width; i++ {
		base := ""
		if i < len(raw) {
			base = strings.TrimSpace(raw[i])
		}
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for n := counts[base]; taken[name]; {
			n++
			name = fmt.Sprintf("%s.%d", base, n)
			counts[base] = n
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
