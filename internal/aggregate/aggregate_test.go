package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

func date(s string) table.Value {
	t, _ := time.Parse("2006-01-02", s)
	return table.Date(t)
}

func plants() *table.Table {
	return table.New("Plants", []string{"Name", "Region", "Capacity", "CommissionDate"}, []table.Row{
		{table.Text("Solar Norte"), table.Text("North"), table.Number(100), date("2020-01-10")},
		{table.Text("Hidro Sul"), table.Text("South"), table.Number(500), date("2018-03-01")},
		{table.Text("Eólica Norte"), table.Text("North"), table.Number(50), date("2020-01-10")},
		{table.Text("Biomassa"), table.Text("North"), table.Number(450), date("2019-11-30")},
		{table.Text("PCH Leste"), table.Text("East"), table.Missing(), date("2022-02-01")},
	})
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Sum, "Soma": Sum, "sum": Sum, "Média": Average, "avg": Average, "average": Average} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseMode("median")
	require.Error(t, err)
}

func TestByDimension_SumAndAverage(t *testing.T) {
	tb := plants()
	sums, err := ByDimension(tb, "Region", "Capacity", Sum)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	require.Equal(t, "East", sums[0].Label)
	require.Equal(t, 0.0, sums[0].Value)
	require.Equal(t, 0, sums[0].Samples)
	require.Equal(t, "North", sums[1].Label)
	require.InDelta(t, 600.0, sums[1].Value, 1e-9)
	require.Equal(t, 3, sums[1].Rows)
	require.Equal(t, "South", sums[2].Label)

	avgs, err := ByDimension(tb, "Region", "Capacity", Average)
	require.NoError(t, err)
	require.InDelta(t, 200.0, avgs[1].Value, 1e-9)
	require.Equal(t, 0.0, avgs[0].Value)
}

func TestByDimension_SingleGroupEqualsWholeTable(t *testing.T) {
	tb := table.New("S", []string{"g", "m"}, []table.Row{
		{table.Text("only"), table.Number(1)},
		{table.Text("only"), table.Number(2)},
		{table.Text("only"), table.Number(6)},
	})
	sum, err := ByDimension(tb, "g", "m", Sum)
	require.NoError(t, err)
	require.Len(t, sum, 1)
	require.InDelta(t, 9.0, sum[0].Value, 1e-9)

	avg, err := ByDimension(tb, "g", "m", Average)
	require.NoError(t, err)
	require.InDelta(t, 3.0, avg[0].Value, 1e-9)
}

func TestByDimension_PlantsScenario(t *testing.T) {
	tb := plants()
	spec := filter.DefaultSpec(tb)
	spec.Category = &filter.Category{Column: "Region", Values: []string{"North"}}
	spec.Ranges["Capacity"] = filter.Range{Min: 100, Max: 500}
	view := filter.Apply(tb, spec)

	pairs, err := ByDimension(view, "Region", "Capacity", Sum)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, "North", pairs[0].Label)
	require.InDelta(t, 550.0, pairs[0].Value, 1e-9)
}

func TestByDimension_NumericKeysSortNumerically(t *testing.T) {
	tb := table.New("S", []string{"year", "m"}, []table.Row{
		{table.Number(2024), table.Number(1)},
		{table.Number(100), table.Number(1)},
		{table.Number(9), table.Number(1)},
	})
	pairs, err := ByDimension(tb, "year", "m", Sum)
	require.NoError(t, err)
	require.Equal(t, []string{"9", "100", "2024"}, []string{pairs[0].Label, pairs[1].Label, pairs[2].Label})
}

func TestByDimension_Errors(t *testing.T) {
	tb := plants()
	_, err := ByDimension(tb, "Ghost", "Capacity", Sum)
	require.ErrorIs(t, err, dasherr.ErrUnknownColumn)
	_, err = ByDimension(tb, "Region", "Name", Sum)
	require.ErrorIs(t, err, dasherr.ErrNotNumeric)
	_, err = ByDimension(tb, "Region", "Capacity", Mode("median"))
	require.Error(t, err)
}

func TestByDate_TimeOrderedSums(t *testing.T) {
	tb := plants()
	series, err := ByDate(tb, "CommissionDate", "Capacity")
	require.NoError(t, err)
	require.Len(t, series, 4)
	for i := 1; i < len(series); i++ {
		require.True(t, series[i-1].Key.Time.Before(series[i].Key.Time))
	}
	require.Equal(t, "2020-01-10", series[2].Label)
	require.InDelta(t, 150.0, series[2].Value, 1e-9)

	_, err = ByDate(tb, "Region", "Capacity")
	require.ErrorIs(t, err, dasherr.ErrNotDate)
}

func TestByDate_SubSecondInstantsStayApart(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 30, 15, 0, time.UTC)
	tb := table.New("Readings", []string{"At", "kWh"}, []table.Row{
		{table.Date(base.Add(500 * time.Millisecond)), table.Number(2)},
		{table.Date(base), table.Number(1)},
		{table.Date(base), table.Number(4)},
	})
	series, err := ByDate(tb, "At", "kWh")
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.True(t, series[0].Key.Time.Equal(base))
	require.Equal(t, 5.0, series[0].Value)
	require.Equal(t, 2, series[0].Rows)
	require.Equal(t, 2.0, series[1].Value)
}

func TestDefaultsAndSummary(t *testing.T) {
	tb := plants()
	require.Equal(t, "Name", DefaultDimension(tb))
	require.Equal(t, "Capacity", DefaultMetric(tb))

	nums := table.New("N", []string{"a", "b"}, []table.Row{{table.Number(1), table.Number(2)}})
	require.Equal(t, "a", DefaultDimension(nums))

	o := Summarize(tb)
	require.Equal(t, Overview{Rows: 5, Columns: 4, NumericColumns: 1, MissingValues: 1}, o)
}
