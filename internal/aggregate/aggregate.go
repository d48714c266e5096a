package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Mode selects how a metric is aggregated within a group.
type Mode string

const (
	Sum     Mode = "sum"
	Average Mode = "average"
)

// ParseMode accepts the mode names used by clients, including the Portuguese
// labels of the original dashboard toggle.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sum", "soma", "total":
		return Sum, nil
	case "average", "avg", "mean", "média", "media":
		return Average, nil
	}
	return "", fmt.Errorf("aggregate: unknown mode %q (want sum or average)", s)
}

// Pair is one aggregated group: the grouping key and the metric result.
type Pair struct {
	Key     table.Value `json:"-"`
	Label   string      `json:"label"`
	Value   float64     `json:"value"`
	Rows    int         `json:"rows"`
	Samples int         `json:"samples"`
}

type bucket struct {
	key     table.Value
	sum     float64
	rows    int
	samples int
}

// group accumulates metric sums per distinct non-missing key value. Missing
// metric cells count toward rows but not samples.
func group(t *table.Table, keyCol, metricCol int) []*bucket {
	byKey := map[string]*bucket{}
	var order []*bucket
	for _, row := range t.Rows {
		k := row[keyCol]
		if k.IsMissing() {
			continue
		}
		id := bucketID(k)
		b, ok := byKey[id]
		if !ok {
			b = &bucket{key: k}
			byKey[id] = b
			order = append(order, b)
		}
		b.rows++
		if f, ok := row[metricCol].Float(); ok {
			b.sum += f
			b.samples++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return table.Compare(order[i].key, order[j].key) < 0 })
	return order
}

// bucketID identifies a group key. Dates key on the exact instant since their
// text form drops sub-second precision.
func bucketID(k table.Value) string {
	if k.Kind == table.KindDate {
		return k.Kind.String() + "\x00" + strconv.FormatInt(k.Time.UnixNano(), 10)
	}
	return k.Kind.String() + "\x00" + k.String()
}

func metricIndex(t *table.Table, metric string) (int, error) {
	i, err := t.MustIndex(metric)
	if err != nil {
		return 0, err
	}
	if typ, _ := t.Type(metric); typ != table.ColumnNumeric {
		return 0, fmt.Errorf("aggregate: metric %q: %w", metric, dasherr.ErrNotNumeric)
	}
	return i, nil
}

// ByDimension groups t by the distinct values of dimension and aggregates
// metric per group, one pair per group in the key's natural order.
func ByDimension(t *table.Table, dimension, metric string, mode Mode) ([]Pair, error) {
	di, err := t.MustIndex(dimension)
	if err != nil {
		return nil, err
	}
	mi, err := metricIndex(t, metric)
	if err != nil {
		return nil, err
	}
	if mode != Sum && mode != Average {
		return nil, fmt.Errorf("aggregate: unknown mode %q", mode)
	}
	buckets := group(t, di, mi)
	out := make([]Pair, 0, len(buckets))
	for _, b := range buckets {
		p := Pair{Key: b.key, Label: b.key.String(), Rows: b.rows, Samples: b.samples, Value: b.sum}
		if mode == Average {
			p.Value = 0
			if b.samples > 0 {
				p.Value = b.sum / float64(b.samples)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// ByDate sorts t by dateColumn ascending, groups by date value and sums metric,
// producing a time-ordered series. Only date-typed columns are eligible.
func ByDate(t *table.Table, dateColumn, metric string) ([]Pair, error) {
	di, err := t.MustIndex(dateColumn)
	if err != nil {
		return nil, err
	}
	if typ, _ := t.Type(dateColumn); typ != table.ColumnDate {
		return nil, fmt.Errorf("aggregate: %q: %w", dateColumn, dasherr.ErrNotDate)
	}
	mi, err := metricIndex(t, metric)
	if err != nil {
		return nil, err
	}
	buckets := group(t, di, mi)
	out := make([]Pair, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, Pair{Key: b.key, Label: b.key.String(), Value: b.sum, Rows: b.rows, Samples: b.samples})
	}
	return out, nil
}

// DefaultDimension prefers the first non-numeric column as the grouping axis,
// falling back to the first column.
func DefaultDimension(t *table.Table) string {
	if text := t.TextColumns(); len(text) > 0 {
		return text[0]
	}
	if len(t.Columns) > 0 {
		return t.Columns[0]
	}
	return ""
}

// DefaultMetric returns the first numeric column, or "" when there is none.
func DefaultMetric(t *table.Table) string {
	if nums := t.NumericColumns(); len(nums) > 0 {
		return nums[0]
	}
	return ""
}

// Overview carries the summary cards shown above the data grid.
type Overview struct {
	Rows           int `json:"rows"`
	Columns        int `json:"columns"`
	NumericColumns int `json:"numeric_columns"`
	MissingValues  int `json:"missing_values"`
}

// Summarize counts rows, columns, numeric columns and missing cells of t.
func Summarize(t *table.Table) Overview {
	o := Overview{Rows: t.Len(), Columns: len(t.Columns), NumericColumns: len(t.NumericColumns())}
	for _, row := range t.Rows {
		for _, v := range row {
			if v.IsMissing() {
				o.MissingValues++
			}
		}
	}
	return o
}
