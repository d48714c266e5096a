package dashboard

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetboard/internal/aggregate"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/pagination"
)

func day(y int, m time.Month, d int) table.Value {
	return table.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func plantsWorkbook(t *testing.T) *table.Workbook {
	t.Helper()
	plants := table.New("Plants", []string{"Name", "Region", "Capacity", "CommissionDate"}, []table.Row{
		{table.Text("Alpha"), table.Text("North"), table.Number(120), day(2021, 1, 10)},
		{table.Text("Bravo"), table.Text("North"), table.Number(80), day(2021, 1, 10)},
		{table.Text("Charlie"), table.Text("South"), table.Number(500), day(2022, 6, 1)},
		{table.Text("Delta"), table.Text("North"), table.Number(300), day(2020, 3, 5)},
		{table.Text("Echo"), table.Text("East"), table.Number(10), day(2023, 9, 9)},
	})
	notes := table.New("Notes", []string{"Note"}, []table.Row{
		{table.Text("first")},
		{table.Text("second")},
	})
	wb, err := table.NewWorkbook(plants, notes)
	require.NoError(t, err)
	return wb
}

type fakeLoader struct {
	entry *workbooks.Entry
	err   error
	calls int
}

func (l *fakeLoader) Load(ctx context.Context, src workbooks.Source) (*workbooks.Entry, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.entry, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	edits    []string
	exports  []error
	renders  int
	sessions int
}

func (r *fakeRecorder) ObserveEdit(kind string) {
	r.mu.Lock()
	r.edits = append(r.edits, kind)
	r.mu.Unlock()
}
func (r *fakeRecorder) ObserveExport(err error) {
	r.mu.Lock()
	r.exports = append(r.exports, err)
	r.mu.Unlock()
}
func (r *fakeRecorder) ObserveRender(time.Duration) {
	r.mu.Lock()
	r.renders++
	r.mu.Unlock()
}
func (r *fakeRecorder) SetSessions(n int) {
	r.mu.Lock()
	r.sessions = n
	r.mu.Unlock()
}

type dirSaver struct{ dir string }

func (s dirSaver) ValidateSavePath(dir, name string) (string, error) {
	return filepath.Join(s.dir, name), nil
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{entry: &workbooks.Entry{Key: "mem", Name: "plants.xlsx", Workbook: plantsWorkbook(t)}}
	return NewService(loader, NewStore(8, time.Hour, nil), opts), loader
}

func boolPtr(b bool) *bool { return &b }

func TestRender_PlantsScenario(t *testing.T) {
	wb := plantsWorkbook(t)
	spec := filter.Spec{
		Category: &filter.Category{Column: "Region", Values: []string{"North"}},
		Ranges:   map[string]filter.Range{"Capacity": {Min: 100, Max: 500}},
	}
	v, err := Render(wb, "Plants", spec, edit.State{}, ChartSpec{Dimension: "Region", Metric: "Capacity", Mode: aggregate.Sum})
	require.NoError(t, err)

	require.Equal(t, 2, v.Table.Len())
	require.Equal(t, []int{0, 3}, v.Visible)
	require.NotNil(t, v.Chart)
	require.Len(t, v.Chart.Pairs, 1)
	require.Equal(t, "North", v.Chart.Pairs[0].Label)
	require.Equal(t, 420.0, v.Chart.Pairs[0].Value)

	require.NotNil(t, v.Trend)
	require.Equal(t, "CommissionDate", v.Trend.DateColumn)
	require.Len(t, v.Trend.Series, 2)
	require.Equal(t, 300.0, v.Trend.Series[0].Value)
	require.Equal(t, 120.0, v.Trend.Series[1].Value)

	require.Equal(t, aggregate.Overview{Rows: 2, Columns: 4, NumericColumns: 1}, v.Overview)
	require.ElementsMatch(t, []string{"North", "South", "East"}, v.Controls.Category.Options)
	require.Equal(t, filter.Range{Min: 10, Max: 500}, v.Controls.Bounds["Capacity"])
}

func TestRender_EditingDisabledReturnsFilteredView(t *testing.T) {
	wb := plantsWorkbook(t)
	src, err := wb.Sheet("Plants")
	require.NoError(t, err)
	spec := filter.DefaultSpec(src)

	v, err := Render(wb, "Plants", spec, edit.State{Ops: []edit.Op{{Kind: edit.Delete, Row: 0}}}, ChartSpec{})
	require.NoError(t, err)
	filtered := filter.Apply(src, spec)
	require.True(t, filtered.Equal(v.Table))

	v, err = Render(wb, "Plants", spec, edit.State{Enabled: true, Ops: []edit.Op{{Kind: edit.Delete, Row: 0}}}, ChartSpec{})
	require.NoError(t, err)
	require.Equal(t, filtered.Len()-1, v.Table.Len())
	require.Equal(t, 5, src.Len())
	require.Equal(t, "Alpha", src.Cell(0, "Name").String())
}

func TestRender_AbsentSections(t *testing.T) {
	wb := plantsWorkbook(t)
	v, err := Render(wb, "Notes", filter.Spec{}, edit.State{}, ChartSpec{})
	require.NoError(t, err)
	require.Nil(t, v.Chart)
	require.Nil(t, v.Trend)
	require.Contains(t, v.Notices, NoticeNoNumeric)

	nodates := table.New("Loads", []string{"UC", "Consumo"}, []table.Row{
		{table.Text("UC-01"), table.Number(5)},
	})
	wb2, err := table.NewWorkbook(nodates)
	require.NoError(t, err)
	v, err = Render(wb2, "Loads", filter.Spec{}, edit.State{}, ChartSpec{})
	require.NoError(t, err)
	require.NotNil(t, v.Chart)
	require.Equal(t, "UC", v.Chart.Dimension)
	require.Equal(t, "Consumo", v.Chart.Metric)
	require.Nil(t, v.Trend)
	require.Contains(t, v.Notices, NoticeNoDates)
}

func TestRender_Errors(t *testing.T) {
	wb := plantsWorkbook(t)
	_, err := Render(wb, "Ghost", filter.Spec{}, edit.State{}, ChartSpec{})
	require.ErrorIs(t, err, dasherr.ErrUnknownSheet)

	_, err = Render(wb, "Plants", filter.Spec{Ranges: map[string]filter.Range{"Region": {Min: 0, Max: 1}}}, edit.State{}, ChartSpec{})
	require.ErrorIs(t, err, dasherr.ErrNotNumeric)

	_, err = Render(wb, "Plants", filter.Spec{}, edit.State{}, ChartSpec{Metric: "Ghost"})
	require.ErrorIs(t, err, dasherr.ErrUnknownColumn)
}

func TestRender_AverageMode(t *testing.T) {
	wb := plantsWorkbook(t)
	v, err := Render(wb, "Plants", filter.Spec{}, edit.State{}, ChartSpec{Dimension: "Region", Metric: "Capacity", Mode: aggregate.Average})
	require.NoError(t, err)
	byLabel := map[string]float64{}
	for _, p := range v.Chart.Pairs {
		byLabel[p.Label] = p.Value
	}
	require.InDelta(t, 500.0/3, byLabel["North"], 1e-9)
	require.Equal(t, 500.0, byLabel["South"])
}

func TestService_OpenAndSelectSheet(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(t, Options{EditsEnabled: true, Metrics: rec})
	ctx := context.Background()

	snap, err := svc.Open(ctx, workbooks.Source{}, "")
	require.NoError(t, err)
	require.Equal(t, "Plants", snap.Sheet)
	require.Equal(t, "plants.xlsx", snap.Source)
	require.Equal(t, filter.Range{Min: 10, Max: 500}, snap.Filters.Ranges["Capacity"])
	require.False(t, snap.Edits.Enabled)
	require.Equal(t, 1, rec.sessions)

	_, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{{Kind: edit.Delete, Row: 0}}})
	require.NoError(t, err)

	snap, err = svc.SelectSheet(ctx, snap.ID, "Notes")
	require.NoError(t, err)
	require.Equal(t, "Notes", snap.Sheet)
	require.Empty(t, snap.Filters.Ranges)
	require.Empty(t, snap.Edits.Ops)
	require.True(t, snap.Edits.Enabled)

	_, err = svc.SelectSheet(ctx, snap.ID, "Ghost")
	require.ErrorIs(t, err, dasherr.ErrUnknownSheet)

	_, err = svc.Open(ctx, workbooks.Source{}, "Ghost")
	require.ErrorIs(t, err, dasherr.ErrUnknownSheet)
}

func TestService_OpenPropagatesLoaderErrors(t *testing.T) {
	svc, loader := newTestService(t, Options{})
	loader.err = dasherr.NewNotFound("", os.ErrNotExist)
	_, err := svc.Open(context.Background(), workbooks.Source{}, "")
	var nf *dasherr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestService_SessionsAreIsolated(t *testing.T) {
	svc, loader := newTestService(t, Options{EditsEnabled: true})
	ctx := context.Background()

	a, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	b, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, loader.calls)

	search := "alpha"
	_, err = svc.SetFilters(ctx, a.ID, FilterUpdate{Search: &search})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, b.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{{Kind: edit.Delete, Row: 4}}})
	require.NoError(t, err)

	pa, err := svc.Render(ctx, a.ID, PageRequest{})
	require.NoError(t, err)
	pb, err := svc.Render(ctx, b.ID, PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, pa.Meta.Total)
	require.Equal(t, 4, pb.Meta.Total)

	src, err := loader.entry.Workbook.Sheet("Plants")
	require.NoError(t, err)
	require.Equal(t, 5, src.Len())
}

func TestService_SetFiltersResetsEdits(t *testing.T) {
	svc, _ := newTestService(t, Options{EditsEnabled: true})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{{Kind: edit.Insert}}})
	require.NoError(t, err)

	// Unchanged filters keep the log.
	snap, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{})
	require.NoError(t, err)
	require.Len(t, snap.Edits.Ops, 1)

	snap, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{Category: &filter.Category{Column: "Region", Values: []string{"North"}}})
	require.NoError(t, err)
	require.Empty(t, snap.Edits.Ops)
	require.Equal(t, "Region", snap.Filters.Category.Column)

	snap, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{ClearCategory: true, Ranges: map[string]filter.Range{"Capacity": {Min: 100, Max: 200}}})
	require.NoError(t, err)
	require.Nil(t, snap.Filters.Category)
	require.Equal(t, filter.Range{Min: 100, Max: 200}, snap.Filters.Ranges["Capacity"])

	snap, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{Reset: true})
	require.NoError(t, err)
	require.Equal(t, filter.Range{Min: 10, Max: 500}, snap.Filters.Ranges["Capacity"])

	_, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{Category: &filter.Category{Column: "Capacity", Values: []string{"1"}}})
	require.ErrorIs(t, err, dasherr.ErrUnknownColumn)
}

func TestService_EditGuards(t *testing.T) {
	ctx := context.Background()

	locked, _ := newTestService(t, Options{EditsEnabled: false})
	snap, err := locked.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	_, err = locked.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true)})
	require.ErrorIs(t, err, dasherr.ErrEditingDisabled)

	rec := &fakeRecorder{}
	svc, _ := newTestService(t, Options{EditsEnabled: true, Metrics: rec})
	snap, err = svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, snap.ID, EditRequest{Ops: []edit.Op{{Kind: edit.Insert}}})
	require.ErrorIs(t, err, dasherr.ErrEditingDisabled)

	_, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{{Kind: "rename"}}})
	require.ErrorIs(t, err, dasherr.ErrInvalidEdit)
	require.Equal(t, dasherr.EditRejected, dasherr.CodeOf(err))

	// A batch with one bad op is rejected as a whole.
	_, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{
		{Kind: edit.Delete, Row: 0},
		{Kind: edit.Update, Row: 9, Column: "Name", Value: "x"},
	}})
	require.ErrorIs(t, err, dasherr.ErrInvalidEdit)
	state, err := svc.State(snap.ID)
	require.NoError(t, err)
	require.Empty(t, state.Edits.Ops)

	snap, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{
		{Kind: edit.Update, Row: 0, Column: "Capacity", Value: "150"},
		{Kind: edit.Delete, Row: 1},
	}})
	require.NoError(t, err)
	require.Len(t, snap.Edits.Ops, 2)
	require.Equal(t, []string{"update", "delete"}, rec.edits)

	snap, err = svc.Edit(ctx, snap.ID, EditRequest{Reset: true})
	require.NoError(t, err)
	require.Empty(t, snap.Edits.Ops)
	require.True(t, snap.Edits.Enabled)
}

func TestService_RenderPaging(t *testing.T) {
	svc, _ := newTestService(t, Options{PreviewRowLimit: 2, MaxPageSize: 3})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	p, err := svc.Render(ctx, snap.ID, PageRequest{})
	require.NoError(t, err)
	require.Equal(t, PageMeta{Total: 5, Offset: 0, Returned: 2, Truncated: true, NextCursor: p.Meta.NextCursor}, p.Meta)
	require.NotEmpty(t, p.Meta.NextCursor)
	require.Equal(t, []any{"Alpha", "North", 120.0, "2021-01-10T00:00:00Z"}, p.Rows[0])
	require.Equal(t, []int{0, 1}, p.Origins)

	p, err = svc.Render(ctx, snap.ID, PageRequest{Cursor: p.Meta.NextCursor})
	require.NoError(t, err)
	require.Equal(t, 2, p.Meta.Offset)
	require.Equal(t, "Charlie", p.Rows[0][0])

	p, err = svc.Render(ctx, snap.ID, PageRequest{Offset: 3, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 2, p.Meta.Returned)
	require.False(t, p.Meta.Truncated)
	require.Empty(t, p.Meta.NextCursor)

	p, err = svc.Render(ctx, snap.ID, PageRequest{Offset: 99})
	require.NoError(t, err)
	require.Equal(t, 0, p.Meta.Returned)
}

func TestService_CursorGoesStaleWhenViewChanges(t *testing.T) {
	svc, _ := newTestService(t, Options{PreviewRowLimit: 2})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	p, err := svc.Render(ctx, snap.ID, PageRequest{})
	require.NoError(t, err)

	search := "a"
	_, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{Search: &search})
	require.NoError(t, err)
	_, err = svc.Render(ctx, snap.ID, PageRequest{Cursor: p.Meta.NextCursor})
	require.ErrorIs(t, err, dasherr.ErrCursorInvalid)
	require.ErrorIs(t, err, pagination.ErrStale)
	require.Equal(t, dasherr.CursorInvalid, dasherr.CodeOf(err))

	_, err = svc.Render(ctx, snap.ID, PageRequest{Cursor: "%%%"})
	require.Equal(t, dasherr.CursorInvalid, dasherr.CodeOf(err))
}

func TestService_SetChart(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	_, err = svc.SetChart(ctx, snap.ID, ChartSpec{Dimension: "Name", Metric: "Capacity", Mode: "média"})
	require.NoError(t, err)
	p, err := svc.Render(ctx, snap.ID, PageRequest{})
	require.NoError(t, err)
	require.Equal(t, aggregate.Average, p.View.Chart.Mode)
	require.Len(t, p.View.Chart.Pairs, 5)

	_, err = svc.SetChart(ctx, snap.ID, ChartSpec{Metric: "Region"})
	require.ErrorIs(t, err, dasherr.ErrNotNumeric)
	_, err = svc.SetChart(ctx, snap.ID, ChartSpec{DateColumn: "Name"})
	require.ErrorIs(t, err, dasherr.ErrNotDate)
	_, err = svc.SetChart(ctx, snap.ID, ChartSpec{Mode: "median"})
	require.Equal(t, dasherr.Validation, dasherr.CodeOf(err))
}

func TestService_ExportWritesEditedSheet(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(t, Options{EditsEnabled: true, Metrics: rec})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	_, err = svc.SetFilters(ctx, snap.ID, FilterUpdate{Category: &filter.Category{Column: "Region", Values: []string{"North"}}})
	require.NoError(t, err)
	_, err = svc.Edit(ctx, snap.ID, EditRequest{Enabled: boolPtr(true), Ops: []edit.Op{{Kind: edit.Delete, Row: 1}}})
	require.NoError(t, err)

	out, err := svc.Export(ctx, snap.ID, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, "Plants_atualizado.xlsx", out.FileName)
	rows := readSheet(t, out.Data, "Plants")
	require.Len(t, rows, 3)
	require.Equal(t, "Alpha", rows[1][0])
	require.Equal(t, "Delta", rows[2][0])
	require.Len(t, readSheet(t, out.Data, "Notes"), 3)

	out, err = svc.Export(ctx, snap.ID, ExportOptions{KeepHidden: true})
	require.NoError(t, err)
	rows = readSheet(t, out.Data, "Plants")
	names := make([]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		names = append(names, r[0])
	}
	require.Equal(t, []string{"Alpha", "Charlie", "Delta", "Echo"}, names)
	require.Equal(t, []error{nil, nil}, rec.exports)
}

func TestService_SaveExport(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newTestService(t, Options{EditsEnabled: true, Saver: dirSaver{dir: dir}})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	out, err := svc.SaveExport(ctx, snap.ID, dir, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Plants_atualizado.xlsx"), out.Path)
	_, err = os.Stat(out.Path)
	require.NoError(t, err)

	locked, _ := newTestService(t, Options{Saver: dirSaver{dir: dir}})
	snap, err = locked.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	_, err = locked.SaveExport(ctx, snap.ID, dir, ExportOptions{})
	require.ErrorIs(t, err, ErrSaveDisabled)
}

func TestService_CloseAndUnknownSessions(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(t, Options{Metrics: rec})
	ctx := context.Background()
	snap, err := svc.Open(ctx, workbooks.Source{}, "")
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, snap.ID))
	require.Equal(t, 0, rec.sessions)

	_, err = svc.Render(ctx, snap.ID, PageRequest{})
	require.ErrorIs(t, err, dasherr.ErrSessionNotFound)
	require.ErrorIs(t, svc.Close(ctx, snap.ID), dasherr.ErrSessionNotFound)
	_, err = svc.Export(ctx, snap.ID, ExportOptions{})
	require.Equal(t, dasherr.InvalidSession, dasherr.CodeOf(err))
}

func TestStore_CapacityAndIdleEviction(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	entry := &workbooks.Entry{Key: "k", Name: "n", Workbook: plantsWorkbook(t)}
	st := NewStore(2, time.Minute, clock)

	a := st.Create(entry, "Plants", filter.Spec{})
	now = now.Add(time.Second)
	b := st.Create(entry, "Plants", filter.Spec{})
	now = now.Add(time.Second)
	c := st.Create(entry, "Plants", filter.Spec{})
	require.Equal(t, 2, st.Count())
	_, err := st.Get(a.ID)
	require.ErrorIs(t, err, dasherr.ErrSessionNotFound)

	now = now.Add(30 * time.Second)
	_, err = st.Get(c.ID)
	require.NoError(t, err)
	now = now.Add(45 * time.Second)
	require.Equal(t, 1, st.EvictIdle())
	_, err = st.Get(b.ID)
	require.ErrorIs(t, err, dasherr.ErrSessionNotFound)
	_, err = st.Get(c.ID)
	require.NoError(t, err)
}

func TestService_ReadsKeepSessionAlive(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	loader := &fakeLoader{entry: &workbooks.Entry{Key: "mem", Name: "plants.xlsx", Workbook: plantsWorkbook(t)}}
	store := NewStore(8, time.Hour, clock)
	svc := NewService(loader, store, Options{})
	ctx := context.Background()

	reader, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)
	idle, err := svc.Open(ctx, workbooks.Source{}, "Plants")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		advance(15 * time.Minute)
		_, err = svc.Render(ctx, reader.ID, PageRequest{Limit: 2})
		require.NoError(t, err)
		_, err = svc.Export(ctx, reader.ID, ExportOptions{})
		require.NoError(t, err)
		_, err = svc.State(reader.ID)
		require.NoError(t, err)
	}

	require.Equal(t, 1, store.EvictIdle())
	_, err = svc.Render(ctx, reader.ID, PageRequest{})
	require.NoError(t, err)
	_, err = svc.State(idle.ID)
	require.ErrorIs(t, err, dasherr.ErrSessionNotFound)
}

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}
