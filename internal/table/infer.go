package table

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	ColumnNumeric ColumnType = "numeric"
	ColumnText    ColumnType = "text"
	ColumnDate    ColumnType = "date"
)

// Column pairs a column name with its inferred type and observation counts.
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Missing int        `json:"missing"`
}

// Schema is the fixed column-type map consumed by every downstream component.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Numeric lists numeric column names in order.
func (s Schema) Numeric() []string { return s.names(func(t ColumnType) bool { return t == ColumnNumeric }) }

// NonNumeric lists text and date column names in order.
func (s Schema) NonNumeric() []string {
	return s.names(func(t ColumnType) bool { return t != ColumnNumeric })
}

// Dates lists date column names in order.
func (s Schema) Dates() []string { return s.names(func(t ColumnType) bool { return t == ColumnDate }) }

func (s Schema) names(keep func(ColumnType) bool) []string {
	var out []string
	for _, c := range s.Columns {
		if keep(c.Type) {
			out = append(out, c.Name)
		}
	}
	return out
}

// kindCounter tracks observed value kinds for a column.
type kindCounter struct {
	numCount  int
	textCount int
	dateCount int
	missing   int
}

func (k *kindCounter) observe(v Value) {
	switch v.Kind {
	case KindNumber:
		k.numCount++
	case KindDate:
		k.dateCount++
	case KindText:
		k.textCount++
	default:
		k.missing++
	}
}

// dominantType is strict: a column is numeric (or date) only when every
// non-missing value is a number (or date). All-missing and mixed columns are text.
func (k kindCounter) dominantType() ColumnType {
	switch {
	case k.numCount > 0 && k.textCount == 0 && k.dateCount == 0:
		return ColumnNumeric
	case k.dateCount > 0 && k.textCount == 0 && k.numCount == 0:
		return ColumnDate
	default:
		return ColumnText
	}
}

// Infer computes the column-type map for rows aligned with columns.
func Infer(columns []string, rows []Row) Schema {
	counters := make([]kindCounter, len(columns))
	for _, r := range rows {
		for i := range columns {
			if i < len(r) {
				counters[i].observe(r[i])
			} else {
				counters[i].missing++
			}
		}
	}
	s := Schema{Columns: make([]Column, len(columns))}
	for i, name := range columns {
		s.Columns[i] = Column{Name: name, Type: counters[i].dominantType(), Missing: counters[i].missing}
	}
	return s
}
