// Package export serializes a workbook back to .xlsx, substituting the edited
// table for the active sheet. The document is built in memory and returned
// only when every sheet was written.
package export

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// MIMEType identifies Office Open XML spreadsheets.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	fileSuffix   = "_atualizado.xlsx"
	maxCellChars = 32767
)

var minExcelTime = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// FileName returns the default download name for an export of sheet.
func FileName(sheet string) string {
	return sheet + fileSuffix
}

// Options tunes an export.
type Options struct {
	// KeepHidden writes rows excluded by the filters back in their original
	// positions; the active sheet then holds hidden rows plus edited visible
	// rows, with inserted rows at the end. Requires Visible and Origins.
	KeepHidden bool
	// Visible is the source-row position of each row of the filtered view.
	Visible []int
	// Origins is the source-row position of each edited row (-1 when inserted).
	Origins []int
}

// Workbook builds a new .xlsx document with one sheet per workbook sheet, in
// workbook order. The sheet named active is written from edited; the others
// are written from their loaded tables.
func Workbook(wb *table.Workbook, active string, edited *table.Table, opts Options) ([]byte, error) {
	if wb == nil || wb.Len() == 0 {
		return nil, fmt.Errorf("export: empty workbook")
	}
	src, err := wb.Sheet(active)
	if err != nil {
		return nil, err
	}
	if edited == nil {
		edited = src
	}
	if opts.KeepHidden {
		edited, err = mergeHidden(src, edited, opts.Visible, opts.Origins)
		if err != nil {
			return nil, err
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	first := true
	err = wb.Each(func(t *table.Table) error {
		data := t
		if t.Name == active {
			data = edited
		}
		if first {
			first = false
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return dasherr.NewSerialization(t.Name, "", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return dasherr.NewSerialization(t.Name, "", err)
		}
		return writeSheet(f, t.Name, data)
	})
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, dasherr.NewSerialization(active, "", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, t *table.Table) error {
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if len(header) > 0 {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return dasherr.NewSerialization(sheet, "A1", err)
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			if v.IsMissing() {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return dasherr.NewSerialization(sheet, "", err)
			}
			if err := writeCell(f, sheet, cell, v); err != nil {
				return dasherr.NewSerialization(sheet, cell, err)
			}
		}
	}
	return nil
}

var (
	errNotFinite = errors.New("number is not finite")
	errTooOld    = errors.New("date precedes 1900-01-01")
	errTooLong   = errors.New("text exceeds the cell character limit")
)

func writeCell(f *excelize.File, sheet, cell string, v table.Value) error {
	switch v.Kind {
	case table.KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return errNotFinite
		}
		return f.SetCellFloat(sheet, cell, v.Num, -1, 64)
	case table.KindDate:
		if v.Time.Before(minExcelTime) {
			return errTooOld
		}
		return f.SetCellValue(sheet, cell, v.Time)
	case table.KindText:
		if utf8.RuneCountInString(v.Str) > maxCellChars {
			return errTooLong
		}
		return f.SetCellStr(sheet, cell, v.Str)
	}
	return nil
}

// mergeHidden interleaves the rows the filters hid with the edited visible rows.
// Source rows listed in visible but absent from origins were deleted.
func mergeHidden(src, edited *table.Table, visible, origins []int) (*table.Table, error) {
	if len(origins) != edited.Len() {
		return nil, fmt.Errorf("export: %d origins for %d edited rows", len(origins), edited.Len())
	}
	replaced := make(map[int]table.Row, len(origins))
	var inserted []table.Row
	for i, o := range origins {
		if o < 0 {
			inserted = append(inserted, edited.Rows[i])
			continue
		}
		replaced[o] = edited.Rows[i]
	}
	shown := make(map[int]struct{}, len(visible))
	for _, v := range visible {
		shown[v] = struct{}{}
	}
	rows := make([]table.Row, 0, src.Len()+len(inserted))
	for i, row := range src.Rows {
		if r, ok := replaced[i]; ok {
			rows = append(rows, r)
			continue
		}
		if _, wasShown := shown[i]; wasShown {
			continue
		}
		rows = append(rows, row)
	}
	rows = append(rows, inserted...)
	return src.WithRows(rows, true), nil
}
