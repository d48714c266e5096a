// Package dashboard owns the per-session dashboard state and the pure render
// pipeline that derives everything a client displays from it.
package dashboard

import (
	"github.com/vinodismyname/sheetboard/internal/aggregate"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/table"
)

// ChartSpec selects the bar chart and trend line inputs. Empty fields fall
// back to defaults derived from the active sheet.
type ChartSpec struct {
	Dimension  string         `json:"dimension,omitempty"`
	Metric     string         `json:"metric,omitempty"`
	Mode       aggregate.Mode `json:"mode,omitempty"`
	DateColumn string         `json:"date_column,omitempty"`
	DateMetric string         `json:"date_metric,omitempty"`
}

// CategoryControl is the categorical selector: its column and choices.
type CategoryControl struct {
	Column  string   `json:"column"`
	Options []string `json:"options"`
}

// Controls describes the filter widgets for the active sheet.
type Controls struct {
	Sheets         []string                `json:"sheets"`
	TextColumns    []string                `json:"text_columns"`
	NumericColumns []string                `json:"numeric_columns"`
	DateColumns    []string                `json:"date_columns"`
	Schema         table.Schema            `json:"schema"`
	Category       *CategoryControl        `json:"category,omitempty"`
	Bounds         map[string]filter.Range `json:"bounds"`
}

// Chart is the aggregated bar chart.
type Chart struct {
	Dimension string           `json:"dimension"`
	Metric    string           `json:"metric"`
	Mode      aggregate.Mode   `json:"mode"`
	Pairs     []aggregate.Pair `json:"pairs"`
}

// Trend is the time series line chart.
type Trend struct {
	DateColumn string           `json:"date_column"`
	Metric     string           `json:"metric"`
	Series     []aggregate.Pair `json:"series"`
}

// Notice strings explain why a section of the view is absent.
const (
	NoticeNoNumeric = "no numeric columns in this sheet; ranges and charts are disabled"
	NoticeNoText    = "no text columns in this sheet; search and categorical filters are disabled"
	NoticeNoDates   = "no date column detected in this sheet; trend skipped"
)

// View is the derived dashboard for one render.
type View struct {
	Sheet    string             `json:"sheet"`
	Controls Controls           `json:"controls"`
	Filter   filter.Spec        `json:"filter"`
	Editing  bool               `json:"editing"`
	Overview aggregate.Overview `json:"overview"`
	Chart    *Chart             `json:"chart,omitempty"`
	Trend    *Trend             `json:"trend,omitempty"`
	Notices  []string           `json:"notices,omitempty"`

	// Table is the edited table; Origins maps each of its rows to the source
	// row (-1 when inserted) and Visible lists the source rows the filters kept.
	Table   *table.Table `json:"-"`
	Origins []int        `json:"-"`
	Visible []int        `json:"-"`
}

// Render derives the dashboard view of sheet from the workbook, the filter
// spec, the edit state and the chart selection. It reads its inputs only.
func Render(wb *table.Workbook, sheet string, spec filter.Spec, st edit.State, chart ChartSpec) (View, error) {
	src, err := wb.Sheet(sheet)
	if err != nil {
		return View{}, err
	}
	if err := filter.Validate(src, spec); err != nil {
		return View{}, err
	}
	filtered, visible := filter.ApplyIndexed(src, spec)
	edited, err := edit.Apply(filtered, visible, st)
	if err != nil {
		return View{}, err
	}

	v := View{
		Sheet:    sheet,
		Controls: controls(wb, src, spec),
		Filter:   spec,
		Editing:  st.Enabled,
		Overview: aggregate.Summarize(filtered),
		Table:    edited.Table,
		Origins:  edited.Origins,
		Visible:  visible,
	}
	if len(src.TextColumns()) == 0 {
		v.Notices = append(v.Notices, NoticeNoText)
	}
	if len(src.NumericColumns()) == 0 {
		v.Notices = append(v.Notices, NoticeNoNumeric)
		return v, nil
	}

	resolved, err := ResolveChart(src, chart)
	if err != nil {
		return View{}, err
	}
	pairs, err := aggregate.ByDimension(edited.Table, resolved.Dimension, resolved.Metric, resolved.Mode)
	if err != nil {
		return View{}, err
	}
	v.Chart = &Chart{Dimension: resolved.Dimension, Metric: resolved.Metric, Mode: resolved.Mode, Pairs: pairs}

	if resolved.DateColumn == "" {
		v.Notices = append(v.Notices, NoticeNoDates)
		return v, nil
	}
	series, err := aggregate.ByDate(edited.Table, resolved.DateColumn, resolved.DateMetric)
	if err != nil {
		return View{}, err
	}
	v.Trend = &Trend{DateColumn: resolved.DateColumn, Metric: resolved.DateMetric, Series: series}
	return v, nil
}

// ResolveChart fills empty chart fields with the sheet's defaults: the first
// non-numeric column as dimension, the first numeric column as metric, sum,
// and the first date column for the trend.
func ResolveChart(t *table.Table, c ChartSpec) (ChartSpec, error) {
	if c.Dimension == "" {
		c.Dimension = aggregate.DefaultDimension(t)
	}
	if c.Metric == "" {
		c.Metric = aggregate.DefaultMetric(t)
	}
	mode, err := aggregate.ParseMode(string(c.Mode))
	if err != nil {
		return ChartSpec{}, err
	}
	c.Mode = mode
	if c.DateColumn == "" {
		if dates := t.DateColumns(); len(dates) > 0 {
			c.DateColumn = dates[0]
		}
	}
	if c.DateMetric == "" {
		c.DateMetric = c.Metric
	}
	return c, nil
}

func controls(wb *table.Workbook, src *table.Table, spec filter.Spec) Controls {
	c := Controls{
		Sheets:         wb.SheetNames(),
		TextColumns:    src.TextColumns(),
		NumericColumns: src.NumericColumns(),
		DateColumns:    src.DateColumns(),
		Schema:         src.Schema(),
		Bounds:         map[string]filter.Range{},
	}
	for _, col := range c.NumericColumns {
		if r, ok := filter.Bounds(src, col); ok {
			c.Bounds[col] = r
		}
	}
	if spec.Category != nil && spec.Category.Column != "" {
		if opts, err := filter.Options(src, spec.Category.Column); err == nil {
			c.Category = &CategoryControl{Column: spec.Category.Column, Options: opts}
		}
	}
	return c
}
