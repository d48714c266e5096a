package dashboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/internal/aggregate"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/export"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/table"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/pagination"
	"github.com/vinodismyname/sheetboard/pkg/validation"
)

// Loader resolves a source to a cached, parsed workbook.
type Loader interface {
	Load(ctx context.Context, src workbooks.Source) (*workbooks.Entry, error)
}

// SaveValidator checks export destinations on disk.
type SaveValidator interface {
	ValidateSavePath(dir, name string) (string, error)
}

// Recorder receives dashboard metrics. telemetry.Metrics implements it.
type Recorder interface {
	ObserveEdit(kind string)
	ObserveExport(err error)
	ObserveRender(d time.Duration)
	SetSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEdit(string)          {}
func (nopRecorder) ObserveExport(error)         {}
func (nopRecorder) ObserveRender(time.Duration) {}
func (nopRecorder) SetSessions(int)             {}

// Options configures a Service.
type Options struct {
	// EditsEnabled gates the edit overlay and saving exports to disk.
	EditsEnabled    bool
	PreviewRowLimit int
	MaxPageSize     int
	Metrics         Recorder
	Saver           SaveValidator
}

// Service runs dashboard operations against sessions held in a Store.
type Service struct {
	loader  Loader
	store   *Store
	edits   bool
	preview int
	maxPage int
	metrics Recorder
	saver   SaveValidator
}

// NewService wires the loader and session store.
func NewService(loader Loader, store *Store, opts Options) *Service {
	if opts.PreviewRowLimit <= 0 {
		opts.PreviewRowLimit = config.DefaultPreviewRowLimit
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = config.DefaultMaxPageSize
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &Service{
		loader:  loader,
		store:   store,
		edits:   opts.EditsEnabled,
		preview: opts.PreviewRowLimit,
		maxPage: opts.MaxPageSize,
		metrics: opts.Metrics,
		saver:   opts.Saver,
	}
}

// Sessions returns the number of live sessions.
func (s *Service) Sessions() int { return s.store.Count() }

// EditsEnabled reports whether the edit overlay may be switched on.
func (s *Service) EditsEnabled() bool { return s.edits }

// Open loads src and starts a session on sheet, or on the first sheet when
// sheet is empty.
func (s *Service) Open(ctx context.Context, src workbooks.Source, sheet string) (Snapshot, error) {
	entry, err := s.loader.Load(ctx, src)
	if err != nil {
		return Snapshot{}, err
	}
	if sheet == "" {
		names := entry.Workbook.SheetNames()
		if len(names) == 0 {
			return Snapshot{}, dasherr.NewParse(entry.Name, "", errors.New("workbook has no sheets"))
		}
		sheet = names[0]
	}
	t, err := entry.Workbook.Sheet(sheet)
	if err != nil {
		return Snapshot{}, err
	}
	sess := s.store.Create(entry, sheet, filter.DefaultSpec(t))
	s.metrics.SetSessions(s.store.Count())
	zerolog.Ctx(ctx).Info().Str("session_id", sess.ID).Str("source", entry.Name).Str("sheet", sheet).Msg("session opened")
	return sess.Snapshot(), nil
}

// Close ends a session.
func (s *Service) Close(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.metrics.SetSessions(s.store.Count())
	zerolog.Ctx(ctx).Info().Str("session_id", id).Msg("session closed")
	return nil
}

// State returns the current session state.
func (s *Service) State(id string) (Snapshot, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// SelectSheet switches the active sheet. Filters return to the new sheet's
// defaults, the chart selection is cleared and the op log is dropped; the
// edit toggle is kept.
func (s *Service) SelectSheet(ctx context.Context, id, sheet string) (Snapshot, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t, err := sess.entry.Workbook.Sheet(sheet)
	if err != nil {
		return Snapshot{}, err
	}
	if sheet != sess.sheet {
		sess.sheet = sheet
		sess.filters = filter.DefaultSpec(t)
		sess.chart = ChartSpec{}
		sess.edits.Ops = nil
	}
	sess.updatedAt = s.store.clock()
	zerolog.Ctx(ctx).Debug().Str("session_id", id).Str("sheet", sheet).Msg("sheet selected")
	return sess.snapshotLocked(), nil
}

// FilterUpdate changes part of a session's filter spec. Nil fields are left
// as they are; Reset first restores the sheet defaults.
type FilterUpdate struct {
	Reset         bool                    `json:"reset,omitempty"`
	Search        *string                 `json:"search,omitempty"`
	Category      *filter.Category        `json:"category,omitempty"`
	ClearCategory bool                    `json:"clear_category,omitempty"`
	Ranges        map[string]filter.Range `json:"ranges,omitempty"`
}

// SetFilters applies upd. A filter change drops the op log, since its row
// indexes address the previous view.
func (s *Service) SetFilters(ctx context.Context, id string, upd FilterUpdate) (Snapshot, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t, err := sess.entry.Workbook.Sheet(sess.sheet)
	if err != nil {
		return Snapshot{}, err
	}
	next := sess.filters.Clone()
	if upd.Reset {
		next = filter.DefaultSpec(t)
	}
	if upd.Search != nil {
		next.Search = *upd.Search
	}
	if upd.ClearCategory {
		next.Category = nil
	}
	if upd.Category != nil {
		c := filter.Category{Column: upd.Category.Column, Values: append([]string(nil), upd.Category.Values...)}
		next.Category = &c
	}
	if len(upd.Ranges) > 0 && next.Ranges == nil {
		next.Ranges = make(map[string]filter.Range, len(upd.Ranges))
	}
	for col, r := range upd.Ranges {
		next.Ranges[col] = r
	}
	if err := filter.Validate(t, next); err != nil {
		return Snapshot{}, err
	}
	if pagination.Hash(next) != pagination.Hash(sess.filters) {
		sess.filters = next
		sess.edits.Ops = nil
	}
	sess.updatedAt = s.store.clock()
	zerolog.Ctx(ctx).Debug().Str("session_id", id).Str("sheet", sess.sheet).Msg("filters updated")
	return sess.snapshotLocked(), nil
}

// SetChart replaces the chart selection after checking its columns.
func (s *Service) SetChart(ctx context.Context, id string, chart ChartSpec) (Snapshot, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	t, err := sess.entry.Workbook.Sheet(sess.sheet)
	if err != nil {
		return Snapshot{}, err
	}
	if err := checkChart(t, chart); err != nil {
		return Snapshot{}, err
	}
	sess.chart = chart
	sess.updatedAt = s.store.clock()
	zerolog.Ctx(ctx).Debug().Str("session_id", id).Str("dimension", chart.Dimension).Str("metric", chart.Metric).Msg("chart updated")
	return sess.snapshotLocked(), nil
}

func checkChart(t *table.Table, c ChartSpec) error {
	if c.Dimension != "" {
		if _, err := t.MustIndex(c.Dimension); err != nil {
			return err
		}
	}
	for _, m := range []string{c.Metric, c.DateMetric} {
		if m == "" {
			continue
		}
		typ, ok := t.Type(m)
		if !ok {
			return fmt.Errorf("chart metric %q: %w", m, dasherr.ErrUnknownColumn)
		}
		if typ != table.ColumnNumeric {
			return fmt.Errorf("chart metric %q: %w", m, dasherr.ErrNotNumeric)
		}
	}
	if c.DateColumn != "" {
		typ, ok := t.Type(c.DateColumn)
		if !ok {
			return fmt.Errorf("trend column %q: %w", c.DateColumn, dasherr.ErrUnknownColumn)
		}
		if typ != table.ColumnDate {
			return fmt.Errorf("trend column %q: %w", c.DateColumn, dasherr.ErrNotDate)
		}
	}
	if _, err := aggregate.ParseMode(string(c.Mode)); err != nil {
		return &validation.Error{Code: dasherr.Validation, Msg: err.Error()}
	}
	return nil
}

// EditRequest toggles editing and appends ops to the log. Reset drops the
// log before the new ops are applied.
type EditRequest struct {
	Enabled *bool     `json:"enabled,omitempty"`
	Reset   bool      `json:"reset,omitempty"`
	Ops     []edit.Op `json:"ops,omitempty" validate:"dive"`
}

// Edit applies req. Ops are validated against the current edited view as a
// batch; a rejected batch leaves the log unchanged.
func (s *Service) Edit(ctx context.Context, id string, req EditRequest) (Snapshot, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := validation.Check(req); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", dasherr.ErrInvalidEdit, err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	enabled := sess.edits.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if enabled && !s.edits {
		return Snapshot{}, dasherr.ErrEditingDisabled
	}
	if len(req.Ops) > 0 && !enabled {
		return Snapshot{}, fmt.Errorf("ops sent while the edit toggle is off: %w", dasherr.ErrEditingDisabled)
	}

	accepted := sess.edits.Ops
	if req.Reset {
		accepted = nil
	}
	if len(req.Ops) > 0 {
		t, err := sess.entry.Workbook.Sheet(sess.sheet)
		if err != nil {
			return Snapshot{}, err
		}
		view, origins := filter.ApplyIndexed(t, sess.filters)
		if err := edit.Check(view, origins, accepted, req.Ops...); err != nil {
			return Snapshot{}, err
		}
	}
	ops := make([]edit.Op, 0, len(accepted)+len(req.Ops))
	ops = append(ops, accepted...)
	ops = append(ops, req.Ops...)
	sess.edits = edit.State{Enabled: enabled, Ops: ops}
	sess.updatedAt = s.store.clock()
	for _, op := range req.Ops {
		s.metrics.ObserveEdit(string(op.Kind))
	}
	zerolog.Ctx(ctx).Debug().Str("session_id", id).Bool("enabled", enabled).Int("ops", len(ops)).Msg("edits applied")
	return sess.snapshotLocked(), nil
}

// PageRequest selects a window of the edited grid. A cursor, when given,
// overrides Offset and Limit.
type PageRequest struct {
	Offset int    `json:"offset,omitempty" validate:"gte=0"`
	Limit  int    `json:"limit,omitempty" validate:"gte=0"`
	Cursor string `json:"cursor,omitempty" validate:"omitempty,cursor"`
}

// PageMeta describes the returned grid window.
type PageMeta struct {
	Total      int    `json:"total"`
	Offset     int    `json:"offset"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Page is a rendered view plus one window of the edited grid.
type Page struct {
	SessionID string   `json:"session_id"`
	Source    string   `json:"source"`
	View      View     `json:"view"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Origins   []int    `json:"origins"`
	Meta      PageMeta `json:"page"`
}

// Render derives the session's view and the requested grid window.
func (s *Service) Render(ctx context.Context, id string, req PageRequest) (Page, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Page{}, err
	}
	if err := validation.Check(req); err != nil {
		return Page{}, err
	}
	snap := sess.Snapshot()
	start := time.Now()
	v, err := Render(snap.entry.Workbook, snap.Sheet, snap.Filters, snap.Edits, snap.Chart)
	if err != nil {
		return Page{}, err
	}
	s.metrics.ObserveRender(time.Since(start))

	vh := viewHash(snap)
	off, limit := req.Offset, req.Limit
	if req.Cursor != "" {
		c, err := pagination.DecodeCursor(req.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("%w: %v", dasherr.ErrCursorInvalid, err)
		}
		if err := c.Matches(id, snap.Sheet, vh); err != nil {
			return Page{}, fmt.Errorf("%w: %w", dasherr.ErrCursorInvalid, err)
		}
		off, limit = c.Off, c.Ps
	}
	if limit <= 0 {
		limit = s.preview
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}

	total := v.Table.Len()
	if off > total {
		off = total
	}
	end := min(off+limit, total)
	p := Page{
		SessionID: id,
		Source:    snap.Source,
		View:      v,
		Columns:   append([]string(nil), v.Table.Columns...),
		Rows:      make([][]any, 0, end-off),
		Origins:   append([]int(nil), v.Origins[off:end]...),
		Meta:      PageMeta{Total: total, Offset: off, Returned: end - off, Truncated: end < total},
	}
	for _, row := range v.Table.Rows[off:end] {
		cells := make([]any, len(row))
		for i, val := range row {
			cells[i] = val.Interface()
		}
		p.Rows = append(p.Rows, cells)
	}
	if p.Meta.Truncated {
		next, err := pagination.EncodeCursor(pagination.Cursor{Sid: id, S: snap.Sheet, Off: pagination.NextOffset(off, end-off), Ps: limit, Vh: vh})
		if err != nil {
			return Page{}, err
		}
		p.Meta.NextCursor = next
	}
	zerolog.Ctx(ctx).Debug().Str("session_id", id).Int("rows", total).Int("offset", off).Int("returned", end-off).Msg("view rendered")
	return p, nil
}

func viewHash(snap Snapshot) string {
	return pagination.Hash(struct {
		Sheet   string      `json:"s"`
		Filters filter.Spec `json:"f"`
		Edits   edit.State  `json:"e"`
	}{snap.Sheet, snap.Filters, snap.Edits})
}

// ExportOptions tunes an export request.
type ExportOptions struct {
	KeepHidden bool `json:"keep_hidden,omitempty"`
}

// Export is a serialized workbook ready for download. Path is set once the
// file has been written to disk.
type Export struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Path     string `json:"path,omitempty"`
	Data     []byte `json:"-"`
}

// Export serializes the session's workbook with the edited table in place of
// the active sheet.
func (s *Service) Export(ctx context.Context, id string, opts ExportOptions) (Export, error) {
	out, err := s.export(id, opts)
	s.metrics.ObserveExport(err)
	log := zerolog.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("export failed")
		return Export{}, err
	}
	log.Info().Str("session_id", id).Str("file", out.FileName).Int("bytes", len(out.Data)).Msg("workbook exported")
	return out, nil
}

func (s *Service) export(id string, opts ExportOptions) (Export, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return Export{}, err
	}
	snap := sess.Snapshot()
	v, err := Render(snap.entry.Workbook, snap.Sheet, snap.Filters, snap.Edits, ChartSpec{})
	if err != nil {
		return Export{}, err
	}
	data, err := export.Workbook(snap.entry.Workbook, snap.Sheet, v.Table, export.Options{
		KeepHidden: opts.KeepHidden,
		Visible:    v.Visible,
		Origins:    v.Origins,
	})
	if err != nil {
		return Export{}, err
	}
	return Export{FileName: export.FileName(snap.Sheet), MIMEType: export.MIMEType, Data: data}, nil
}

// ErrSaveDisabled reports that no save destination validator is configured.
var ErrSaveDisabled = errors.New("saving exports to disk is disabled")

// SaveExport exports and writes the file into dir.
func (s *Service) SaveExport(ctx context.Context, id, dir string, opts ExportOptions) (Export, error) {
	if s.saver == nil || !s.edits {
		return Export{}, fmt.Errorf("%w: %w", ErrSaveDisabled, dasherr.ErrEditingDisabled)
	}
	out, err := s.Export(ctx, id, opts)
	if err != nil {
		return Export{}, err
	}
	path, err := s.saver.ValidateSavePath(dir, out.FileName)
	if err != nil {
		return Export{}, err
	}
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return Export{}, fmt.Errorf("write %s: %w", path, err)
	}
	out.Path = path
	zerolog.Ctx(ctx).Info().Str("session_id", id).Str("path", path).Msg("export saved")
	return out, nil
}

// Run evicts idle sessions every period until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = config.DefaultWorkbookCleanupPeriod
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.EvictIdle(); n > 0 {
				s.metrics.SetSessions(s.store.Count())
				zerolog.Ctx(ctx).Debug().Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}
