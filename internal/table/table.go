package table

import (
	"fmt"

	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Row is a record aligned positionally with its table's columns.
type Row []Value

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Table is one named sheet: ordered columns, ordered rows and the column-type
// map inferred when the table was built. Tables are never mutated after New.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
	schema  Schema
	index   map[string]int
}

// New builds a table and runs schema inference over its rows. Short rows are
// padded with missing values so every row has len(columns) cells.
func New(name string, columns []string, rows []Row) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	for i, r := range rows {
		if len(r) < len(cols) {
			padded := make(Row, len(cols))
			copy(padded, r)
			rows[i] = padded
		} else if len(r) > len(cols) {
			rows[i] = r[:len(cols)]
		}
	}
	t := &Table{Name: name, Columns: cols, Rows: rows, index: idx}
	t.schema = Infer(cols, rows)
	return t
}

// WithRows returns a table with t's columns and the given rows. When
// keepSchema is true the column types of t are reused instead of re-inferred,
// so a row subset keeps the partition of its source.
func (t *Table) WithRows(rows []Row, keepSchema bool) *Table {
	if !keepSchema {
		return New(t.Name, t.Columns, rows)
	}
	return &Table{Name: t.Name, Columns: t.Columns, Rows: rows, schema: t.schema, index: t.index}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Schema returns the inferred column types.
func (t *Table) Schema() Schema { return t.schema }

// Index returns the position of a column.
func (t *Table) Index(column string) (int, bool) {
	i, ok := t.index[column]
	return i, ok
}

// MustIndex returns the position of a column or an ErrUnknownColumn error.
func (t *Table) MustIndex(column string) (int, error) {
	i, ok := t.index[column]
	if !ok {
		return 0, fmt.Errorf("table %q: %q: %w", t.Name, column, dasherr.ErrUnknownColumn)
	}
	return i, nil
}

// Cell returns the value at row r for column.
func (t *Table) Cell(r int, column string) Value {
	i, ok := t.index[column]
	if !ok || r < 0 || r >= len(t.Rows) {
		return Missing()
	}
	return t.Rows[r][i]
}

// Type returns the inferred type of column.
func (t *Table) Type(column string) (ColumnType, bool) {
	i, ok := t.index[column]
	if !ok {
		return "", false
	}
	return t.schema.Columns[i].Type, true
}

// NumericColumns lists numeric columns in column order.
func (t *Table) NumericColumns() []string { return t.schema.Numeric() }

// TextColumns lists non-numeric columns (text and date) in column order.
func (t *Table) TextColumns() []string { return t.schema.NonNumeric() }

// DateColumns lists date-typed columns in column order.
func (t *Table) DateColumns() []string { return t.schema.Dates() }

// Equal reports whether two tables hold the same columns and cell values.
func (t *Table) Equal(o *Table) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || len(t.Columns) != len(o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if !t.Rows[i][j].Equal(o.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// Workbook is an ordered collection of uniquely named tables.
type Workbook struct {
	names  []string
	sheets map[string]*Table
}

// NewWorkbook constructs a workbook from tables in sheet order.
func NewWorkbook(tables ...*Table) (*Workbook, error) {
	wb := &Workbook{sheets: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("table: nil sheet")
		}
		if _, dup := wb.sheets[t.Name]; dup {
			return nil, fmt.Errorf("table: duplicate sheet name %q", t.Name)
		}
		wb.names = append(wb.names, t.Name)
		wb.sheets[t.Name] = t
	}
	return wb, nil
}

// SheetNames returns sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}

// Sheet returns the named table.
func (w *Workbook) Sheet(name string) (*Table, error) {
	t, ok := w.sheets[name]
	if !ok {
		return nil, fmt.Errorf("workbook: %q: %w", name, dasherr.ErrUnknownSheet)
	}
	return t, nil
}

// Len returns the number of sheets.
func (w *Workbook) Len() int { return len(w.names) }

// Each visits sheets in order until fn returns an error.
func (w *Workbook) Each(fn func(t *Table) error) error {
	for _, n := range w.names {
		if err := fn(w.sheets[n]); err != nil {
			return err
		}
	}
	return nil
}
