package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindNumber
	KindText
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	default:
		return "missing"
	}
}

// Value is a typed cell scalar. The zero Value is missing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Time time.Time
}

// Missing returns the missing value.
func Missing() Value { return Value{} }

// Number wraps a float.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text wraps a string.
func Text(s string) Value { return Value{Kind: KindText, Str: s} }

// Date wraps a timestamp.
func Date(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// IsMissing reports whether v holds no value.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// Float returns the numeric payload when v is a number.
func (v Value) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// String renders v as display text. Missing renders as "".
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1e15 {
			return strconv.FormatFloat(v.Num, 'f', -1, 64)
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindText:
		return v.Str
	case KindDate:
		if v.Time.Hour() == 0 && v.Time.Minute() == 0 && v.Time.Second() == 0 && v.Time.Nanosecond() == 0 {
			return v.Time.Format("2006-01-02")
		}
		return v.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// Interface returns v as a JSON-friendly Go value.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindText:
		return v.Str
	case KindDate:
		return v.Time.Format(time.RFC3339)
	default:
		return nil
	}
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindText:
		return v.Str == o.Str
	case KindDate:
		return v.Time.Equal(o.Time)
	default:
		return true
	}
}

// Compare orders values naturally: missing first, then numbers, dates and text;
// within a kind by payload.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		return kindRank(a.Kind) - kindRank(b.Kind)
	}
	switch a.Kind {
	case KindNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case KindDate:
		return a.Time.Compare(b.Time)
	case KindText:
		return strings.Compare(a.Str, b.Str)
	}
	return 0
}

func kindRank(k Kind) int {
	switch k {
	case KindMissing:
		return 0
	case KindNumber:
		return 1
	case KindDate:
		return 2
	default:
		return 3
	}
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01-02 15:04:05", "2006/01/02", "02/01/2006", "01/02/2006", "1/2/2006", "1/2/06",
}

// ParseDate parses s using the date layouts accepted for typed input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseNumber parses s as a float, tolerating thousands separators and a
// leading currency sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$':
			return -1
		default:
			return r
		}
	}, s)
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
