// Package edit implements the row-level edit overlay over a filtered view.
//
// Edits are an ordered log of operations. Replaying the log over a view is a
// pure function, so the edited table can be rebuilt on every render from the
// view and the session's log without holding mutable grid state.
package edit

import (
	"fmt"
	"strings"

	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Kind names an edit operation.
type Kind string

const (
	Update Kind = "update"
	Insert Kind = "insert"
	Delete Kind = "delete"
)

// Op is a single grid edit. Row indexes address the edited table as it stands
// after all previous ops. Insert ignores Row and appends an all-missing row.
type Op struct {
	Kind   Kind   `json:"kind" validate:"required,oneof=update insert delete"`
	Row    int    `json:"row,omitempty" validate:"gte=0"`
	Column string `json:"column,omitempty" validate:"required_if=Kind update"`
	Value  string `json:"value,omitempty"`
}

// State is the edit toggle plus the op log.
type State struct {
	Enabled bool `json:"enabled"`
	Ops     []Op `json:"ops,omitempty"`
}

// Result is the edited table along with the source-row position of each row
// (-1 for inserted rows).
type Result struct {
	Table   *table.Table
	Origins []int
}

// Apply replays st over view. When editing is disabled the view itself is
// returned unchanged, and origins are passed through as given.
func Apply(view *table.Table, origins []int, st State) (Result, error) {
	if !st.Enabled {
		return Result{Table: view, Origins: origins}, nil
	}
	o := newOverlay(view, origins)
	for i, op := range st.Ops {
		if err := o.apply(op); err != nil {
			return Result{}, fmt.Errorf("edit: op %d: %w", i, err)
		}
	}
	return o.result(), nil
}

// Check validates ops against view and the log already accepted, without
// keeping the outcome. Use it before appending ops to a session's log.
func Check(view *table.Table, origins []int, accepted []Op, next ...Op) error {
	all := make([]Op, 0, len(accepted)+len(next))
	all = append(all, accepted...)
	all = append(all, next...)
	_, err := Apply(view, origins, State{Enabled: true, Ops: all})
	return err
}

type overlay struct {
	view    *table.Table
	rows    []table.Row
	origins []int
}

func newOverlay(view *table.Table, origins []int) *overlay {
	o := &overlay{view: view, rows: make([]table.Row, len(view.Rows)), origins: make([]int, len(view.Rows))}
	for i, r := range view.Rows {
		o.rows[i] = r.Clone()
		if i < len(origins) {
			o.origins[i] = origins[i]
		} else {
			o.origins[i] = i
		}
	}
	return o
}

func (o *overlay) apply(op Op) error {
	switch op.Kind {
	case Update:
		if op.Row < 0 || op.Row >= len(o.rows) {
			return fmt.Errorf("row %d out of range [0,%d): %w", op.Row, len(o.rows), dasherr.ErrInvalidEdit)
		}
		col, err := o.view.MustIndex(op.Column)
		if err != nil {
			return fmt.Errorf("%w: %w", dasherr.ErrInvalidEdit, err)
		}
		typ, _ := o.view.Type(op.Column)
		o.rows[op.Row][col] = Coerce(typ, op.Value)
	case Insert:
		o.rows = append(o.rows, make(table.Row, len(o.view.Columns)))
		o.origins = append(o.origins, -1)
	case Delete:
		if op.Row < 0 || op.Row >= len(o.rows) {
			return fmt.Errorf("row %d out of range [0,%d): %w", op.Row, len(o.rows), dasherr.ErrInvalidEdit)
		}
		o.rows = append(o.rows[:op.Row], o.rows[op.Row+1:]...)
		o.origins = append(o.origins[:op.Row], o.origins[op.Row+1:]...)
	default:
		return fmt.Errorf("unknown kind %q: %w", op.Kind, dasherr.ErrInvalidEdit)
	}
	return nil
}

func (o *overlay) result() Result {
	return Result{Table: o.view.WithRows(o.rows, true), Origins: o.origins}
}

// Coerce converts raw grid input to a value of the column's type when it
// parses, and to text otherwise. Blank input is missing.
func Coerce(typ table.ColumnType, raw string) table.Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return table.Missing()
	}
	switch typ {
	case table.ColumnNumeric:
		if f, ok := table.ParseNumber(s); ok {
			return table.Number(f)
		}
	case table.ColumnDate:
		if t, ok := table.ParseDate(s); ok {
			return table.Date(t)
		}
	}
	return table.Text(raw)
}
