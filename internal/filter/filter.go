// Package filter composes the dashboard's row predicates: free-text search,
// a single categorical selection, and per-numeric-column closed intervals.
package filter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Range is a closed numeric interval [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether f lies inside r, inclusive on both ends.
func (r Range) Contains(f float64) bool { return f >= r.Min && f <= r.Max }

// Category restricts one non-numeric column to a set of values.
type Category struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// Spec is the current combination of search text, categorical selection and
// numeric ranges. The zero Spec keeps every row except those whose numeric
// cells are missing for a column with a configured range.
type Spec struct {
	Search   string           `json:"search,omitempty"`
	Category *Category        `json:"category,omitempty"`
	Ranges   map[string]Range `json:"ranges,omitempty"`
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	out := Spec{Search: s.Search}
	if s.Category != nil {
		c := Category{Column: s.Category.Column, Values: append([]string(nil), s.Category.Values...)}
		out.Category = &c
	}
	if s.Ranges != nil {
		out.Ranges = make(map[string]Range, len(s.Ranges))
		for k, v := range s.Ranges {
			out.Ranges[k] = v
		}
	}
	return out
}

// DefaultSpec returns an empty search, no categorical filter, and each numeric
// column's full observed interval. Numeric columns without any value get no range.
func DefaultSpec(t *table.Table) Spec {
	spec := Spec{Ranges: map[string]Range{}}
	for _, col := range t.NumericColumns() {
		if r, ok := Bounds(t, col); ok {
			spec.Ranges[col] = r
		}
	}
	return spec
}

// Bounds returns the observed [min, max] of a numeric column.
func Bounds(t *table.Table, column string) (Range, bool) {
	i, ok := t.Index(column)
	if !ok {
		return Range{}, false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	seen := false
	for _, row := range t.Rows {
		f, ok := row[i].Float()
		if !ok {
			continue
		}
		seen = true
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if !seen {
		return Range{}, false
	}
	return Range{Min: lo, Max: hi}, true
}

// Options lists the sorted distinct non-missing values of a column as text,
// the choices offered by the categorical selector.
func Options(t *table.Table, column string) ([]string, error) {
	i, err := t.MustIndex(column)
	if err != nil {
		return nil, err
	}
	seen := map[string]table.Value{}
	for _, row := range t.Rows {
		v := row[i]
		if v.IsMissing() {
			continue
		}
		if _, ok := seen[v.String()]; !ok {
			seen[v.String()] = v
		}
	}
	vals := make([]table.Value, 0, len(seen))
	for _, v := range seen {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(a, b int) bool { return table.Compare(vals[a], vals[b]) < 0 })
	out := make([]string, len(vals))
	for k, v := range vals {
		out[k] = v.String()
	}
	return out, nil
}

// Validate checks that every column named by s exists in t with the right type.
func Validate(t *table.Table, s Spec) error {
	if s.Category != nil && s.Category.Column != "" {
		typ, ok := t.Type(s.Category.Column)
		if !ok {
			return fmt.Errorf("filter: categorical column %q: %w", s.Category.Column, dasherr.ErrUnknownColumn)
		}
		if typ == table.ColumnNumeric {
			return fmt.Errorf("filter: categorical column %q is numeric: %w", s.Category.Column, dasherr.ErrUnknownColumn)
		}
	}
	for col, r := range s.Ranges {
		typ, ok := t.Type(col)
		if !ok {
			return fmt.Errorf("filter: range column %q: %w", col, dasherr.ErrUnknownColumn)
		}
		if typ != table.ColumnNumeric {
			return fmt.Errorf("filter: range column %q: %w", col, dasherr.ErrNotNumeric)
		}
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
			return fmt.Errorf("filter: range for %q is not a number", col)
		}
	}
	return nil
}

// compiled holds resolved column positions for a single pass over the rows.
type compiled struct {
	needle   string
	textCols []int
	catCol   int
	catSet   map[string]struct{}
	ranges   []colRange
}

type colRange struct {
	col int
	r   Range
}

func compile(t *table.Table, s Spec) compiled {
	c := compiled{catCol: -1}
	textCols := t.TextColumns()
	if s.Search != "" && len(textCols) > 0 {
		c.needle = strings.ToLower(s.Search)
		for _, name := range textCols {
			i, _ := t.Index(name)
			c.textCols = append(c.textCols, i)
		}
	}
	if s.Category != nil && s.Category.Column != "" && len(s.Category.Values) > 0 && len(textCols) > 0 {
		if i, ok := t.Index(s.Category.Column); ok {
			c.catCol = i
			c.catSet = make(map[string]struct{}, len(s.Category.Values))
			for _, v := range s.Category.Values {
				c.catSet[v] = struct{}{}
			}
		}
	}
	for _, name := range t.NumericColumns() {
		r, ok := s.Ranges[name]
		if !ok {
			continue
		}
		i, _ := t.Index(name)
		c.ranges = append(c.ranges, colRange{col: i, r: r})
	}
	return c
}

func (c compiled) keep(row table.Row) bool {
	if c.needle != "" {
		hit := false
		for _, i := range c.textCols {
			v := row[i]
			if v.IsMissing() {
				continue
			}
			if strings.Contains(strings.ToLower(v.String()), c.needle) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if c.catCol >= 0 {
		v := row[c.catCol]
		if v.IsMissing() {
			return false
		}
		if _, ok := c.catSet[v.String()]; !ok {
			return false
		}
	}
	for _, cr := range c.ranges {
		f, ok := row[cr.col].Float()
		if !ok || !cr.r.Contains(f) {
			return false
		}
	}
	return true
}

// Apply returns the filtered view of t under s. The view shares cell values
// with t, keeps t's column types, and never mutates t.
func Apply(t *table.Table, s Spec) *table.Table {
	view, _ := ApplyIndexed(t, s)
	return view
}

// ApplyIndexed is Apply plus the source-row position of every kept row.
func ApplyIndexed(t *table.Table, s Spec) (*table.Table, []int) {
	c := compile(t, s)
	rows := make([]table.Row, 0, t.Len())
	origins := make([]int, 0, t.Len())
	for i, row := range t.Rows {
		if c.keep(row) {
			rows = append(rows, row)
			origins = append(origins, i)
		}
	}
	return t.WithRows(rows, true), origins
}
