package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/sheetboard/internal/aggregate"
	"github.com/vinodismyname/sheetboard/internal/dashboard"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/filter"
	"github.com/vinodismyname/sheetboard/internal/runtime"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/validation"
)

// --- Input / Output Schemas (typed for discovery) ---

// OpenWorkbookInput defines parameters for opening a dashboard session.
type OpenWorkbookInput struct {
	Path  string `json:"path,omitempty" validate:"omitempty,filepath_ext" jsonschema_description:"Allowed path to an Excel workbook; omit both path and data to auto-discover one in the data directory"`
	Data  string `json:"data,omitempty" validate:"omitempty,base64" jsonschema_description:"Base64-encoded .xlsx bytes to upload instead of a path"`
	Name  string `json:"name,omitempty" validate:"required_with=Data" jsonschema_description:"File name for uploaded data"`
	Sheet string `json:"sheet,omitempty" validate:"omitempty,sheetname" jsonschema_description:"Sheet to show first; defaults to the first sheet"`
}

// OpenWorkbookOutput documents the response fields for open_workbook.
type OpenWorkbookOutput struct {
	SessionID       string   `json:"session_id" jsonschema_description:"Dashboard session ID for subsequent calls"`
	Source          string   `json:"source" jsonschema_description:"Name of the loaded workbook"`
	Sheet           string   `json:"sheet" jsonschema_description:"Active sheet"`
	Sheets          []string `json:"sheets" jsonschema_description:"All sheet names in workbook order"`
	EditsAvailable  bool     `json:"edits_available" jsonschema_description:"True when the edit overlay can be enabled"`
	MaxPayloadBytes int      `json:"maxPayloadBytes" jsonschema_description:"Effective payload size limit in bytes"`
	PreviewRowLimit int      `json:"previewRowLimit" jsonschema_description:"Default row limit for render_view pages"`
}

// SessionInput addresses an existing session.
type SessionInput struct {
	SessionID string `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
}

// SelectSheetInput switches the active sheet.
type SelectSheetInput struct {
	SessionID string `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	Sheet     string `json:"sheet" validate:"required,sheetname" jsonschema_description:"Sheet name to activate; filters and edits reset"`
}

// RangeInput bounds one numeric column.
type RangeInput struct {
	Column string  `json:"column" validate:"required" jsonschema_description:"Numeric column name"`
	Min    float64 `json:"min" jsonschema_description:"Inclusive lower bound"`
	Max    float64 `json:"max" validate:"gtefield=Min" jsonschema_description:"Inclusive upper bound"`
}

// SetFiltersInput updates part of the filter spec.
type SetFiltersInput struct {
	SessionID      string       `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	Reset          bool         `json:"reset,omitempty" jsonschema_description:"Restore the sheet's default filters before applying other fields"`
	Search         *string      `json:"search,omitempty" jsonschema_description:"Case-insensitive substring matched against text columns; empty clears it"`
	CategoryColumn string       `json:"category_column,omitempty" jsonschema_description:"Text column for the categorical filter"`
	Categories     []string     `json:"categories,omitempty" jsonschema_description:"Selected values; empty keeps every row and lists the options in render_view"`
	ClearCategory  bool         `json:"clear_category,omitempty" jsonschema_description:"Remove the categorical filter"`
	Ranges         []RangeInput `json:"ranges,omitempty" validate:"dive" jsonschema_description:"Numeric intervals keyed by column"`
}

// SetChartInput selects chart inputs. Empty fields use sheet defaults.
type SetChartInput struct {
	SessionID  string `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	Dimension  string `json:"dimension,omitempty" jsonschema_description:"Grouping column for the bar chart"`
	Metric     string `json:"metric,omitempty" jsonschema_description:"Numeric column aggregated per group"`
	Mode       string `json:"mode,omitempty" validate:"omitempty,agg_mode" jsonschema_description:"sum or average"`
	DateColumn string `json:"date_column,omitempty" jsonschema_description:"Date column for the trend line"`
	DateMetric string `json:"date_metric,omitempty" jsonschema_description:"Numeric column summed per date; defaults to metric"`
}

// EditRowsInput toggles editing and appends grid edits.
type EditRowsInput struct {
	SessionID string    `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	Enabled   *bool     `json:"enabled,omitempty" jsonschema_description:"Turn the edit overlay on or off"`
	Reset     bool      `json:"reset,omitempty" jsonschema_description:"Discard accepted edits before applying ops"`
	Ops       []edit.Op `json:"ops,omitempty" jsonschema_description:"Ordered ops: update{row,column,value}, insert, delete{row}; rows index the edited grid"`
}

// SessionStateOutput reports a session after a mutation.
type SessionStateOutput struct {
	Session dashboard.Snapshot `json:"session"`
}

// RenderViewInput requests a rendered dashboard page.
type RenderViewInput struct {
	SessionID string `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	Offset    int    `json:"offset,omitempty" validate:"gte=0" jsonschema_description:"First grid row to return"`
	Limit     int    `json:"limit,omitempty" validate:"gte=0" jsonschema_description:"Max grid rows (bounded)"`
	Cursor    string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; overrides offset and limit"`
}

// ExportWorkbookInput requests an .xlsx export.
type ExportWorkbookInput struct {
	SessionID  string `json:"session_id" validate:"required,uuid" jsonschema_description:"Dashboard session ID"`
	KeepHidden bool   `json:"keep_hidden,omitempty" jsonschema_description:"Keep rows hidden by filters in the exported active sheet"`
	SaveDir    string `json:"save_dir,omitempty" jsonschema_description:"Allowed directory to write the file into instead of returning it inline"`
}

// ExportWorkbookOutput documents the export result.
type ExportWorkbookOutput struct {
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Path     string `json:"path,omitempty" jsonschema_description:"Written file when save_dir was given"`
	Data     string `json:"data,omitempty" jsonschema_description:"Base64-encoded workbook when returned inline"`
}

// RegisterDashboardTools defines the dashboard tools and binds them to svc.
func RegisterDashboardTools(s *server.MCPServer, reg *Registry, svc *dashboard.Service, limits runtime.Limits) {
	h := &handlers{svc: svc, reg: reg, limits: limits}

	add := func(tool mcp.Tool, handler server.ToolHandlerFunc) {
		s.AddTool(tool, handler)
		reg.Register(tool)
	}

	add(mcp.NewTool(
		"open_workbook",
		mcp.WithDescription("Load a workbook from an allowed path, an upload, or the data directory and start a dashboard session on one sheet. Errors include NOT_FOUND, PARSE_FAILED, FILE_TOO_LARGE and PERMISSION_DENIED."),
		mcp.WithInputSchema[OpenWorkbookInput](),
		mcp.WithOutputSchema[OpenWorkbookOutput](),
	), mcp.NewTypedToolHandler(h.open))

	add(mcp.NewTool(
		"close_session",
		mcp.WithDescription("End a dashboard session and discard its filters and edits"),
		mcp.WithInputSchema[SessionInput](),
		mcp.WithDestructiveHintAnnotation(true),
	), mcp.NewTypedToolHandler(h.close))

	add(mcp.NewTool(
		"select_sheet",
		mcp.WithDescription("Switch the active sheet. Filters return to the new sheet's defaults and pending edits are dropped."),
		mcp.WithInputSchema[SelectSheetInput](),
		mcp.WithOutputSchema[SessionStateOutput](),
	), mcp.NewTypedToolHandler(h.selectSheet))

	add(mcp.NewTool(
		"set_filters",
		mcp.WithDescription("Update the search text, categorical selection, or numeric ranges. Omitted fields keep their values. Changing filters discards pending edits."),
		mcp.WithInputSchema[SetFiltersInput](),
		mcp.WithOutputSchema[SessionStateOutput](),
	), mcp.NewTypedToolHandler(h.setFilters))

	add(mcp.NewTool(
		"set_chart",
		mcp.WithDescription("Choose the bar chart dimension, metric and aggregation, and the trend date column"),
		mcp.WithInputSchema[SetChartInput](),
		mcp.WithOutputSchema[SessionStateOutput](),
	), mcp.NewTypedToolHandler(h.setChart))

	add(mcp.NewTool(
		"edit_rows",
		mcp.WithDescription("Enable or disable the edit overlay and append update, insert or delete ops over the filtered grid. A batch is accepted or rejected as a whole."),
		mcp.WithInputSchema[EditRowsInput](),
		mcp.WithOutputSchema[SessionStateOutput](),
	), mcp.NewTypedToolHandler(h.editRows))

	add(mcp.NewTool(
		"render_view",
		mcp.WithDescription("Render the dashboard: controls, overview cards, bar chart, trend series and one page of the edited grid. Use next_cursor to page."),
		mcp.WithInputSchema[RenderViewInput](),
		mcp.WithOutputSchema[dashboard.Page](),
		mcp.WithReadOnlyHintAnnotation(true),
	), mcp.NewTypedToolHandler(h.render))

	add(mcp.NewTool(
		"export_workbook",
		mcp.WithDescription("Export the workbook as .xlsx with the edited table in place of the active sheet. Returns base64 data, or writes into save_dir when edits are enabled."),
		mcp.WithInputSchema[ExportWorkbookInput](),
		mcp.WithOutputSchema[ExportWorkbookOutput](),
	), mcp.NewTypedToolHandler(h.export))
}

type handlers struct {
	svc    *dashboard.Service
	reg    *Registry
	limits runtime.Limits
}

func (h *handlers) open(ctx context.Context, req mcp.CallToolRequest, in OpenWorkbookInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	src := workbooks.Source{Path: strings.TrimSpace(in.Path), Name: in.Name}
	if in.Data != "" {
		data, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			return dasherr.New(dasherr.Validation, "data must be base64"), nil
		}
		src = workbooks.Source{Name: in.Name, Data: data}
	}
	snap, err := h.svc.Open(ctx, src, in.Sheet)
	if err != nil {
		return dasherr.FromError(err), nil
	}
	out := OpenWorkbookOutput{
		SessionID:       snap.ID,
		Source:          snap.Source,
		Sheet:           snap.Sheet,
		Sheets:          snap.Sheets,
		EditsAvailable:  h.svc.EditsEnabled(),
		MaxPayloadBytes: h.limits.MaxPayloadBytes,
		PreviewRowLimit: h.limits.PreviewRowLimit,
	}
	summary := fmt.Sprintf("session=%s source=%q sheet=%q sheets=%v", out.SessionID, out.Source, out.Sheet, out.Sheets)
	return mcp.NewToolResultStructured(out, summary), nil
}

func (h *handlers) close(ctx context.Context, req mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	if err := h.svc.Close(ctx, in.SessionID); err != nil {
		return dasherr.FromError(err), nil
	}
	return mcp.NewToolResultText("closed " + in.SessionID), nil
}

func (h *handlers) selectSheet(ctx context.Context, req mcp.CallToolRequest, in SelectSheetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	return stateResult(h.svc.SelectSheet(ctx, in.SessionID, in.Sheet))
}

func (h *handlers) setFilters(ctx context.Context, req mcp.CallToolRequest, in SetFiltersInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	upd := dashboard.FilterUpdate{Reset: in.Reset, Search: in.Search, ClearCategory: in.ClearCategory}
	if in.CategoryColumn != "" {
		upd.Category = &filter.Category{Column: in.CategoryColumn, Values: in.Categories}
	}
	if len(in.Ranges) > 0 {
		upd.Ranges = make(map[string]filter.Range, len(in.Ranges))
		for _, r := range in.Ranges {
			upd.Ranges[r.Column] = filter.Range{Min: r.Min, Max: r.Max}
		}
	}
	return stateResult(h.svc.SetFilters(ctx, in.SessionID, upd))
}

func (h *handlers) setChart(ctx context.Context, req mcp.CallToolRequest, in SetChartInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	chart := dashboard.ChartSpec{
		Dimension:  in.Dimension,
		Metric:     in.Metric,
		DateColumn: in.DateColumn,
		DateMetric: in.DateMetric,
	}
	if in.Mode != "" {
		mode, err := aggregate.ParseMode(in.Mode)
		if err != nil {
			return dasherr.New(dasherr.Validation, err.Error()), nil
		}
		chart.Mode = mode
	}
	return stateResult(h.svc.SetChart(ctx, in.SessionID, chart))
}

func (h *handlers) editRows(ctx context.Context, req mcp.CallToolRequest, in EditRowsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	return stateResult(h.svc.Edit(ctx, in.SessionID, dashboard.EditRequest{Enabled: in.Enabled, Reset: in.Reset, Ops: in.Ops}))
}

func (h *handlers) render(ctx context.Context, req mcp.CallToolRequest, in RenderViewInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	page, err := h.svc.Render(ctx, in.SessionID, dashboard.PageRequest{Offset: in.Offset, Limit: in.Limit, Cursor: in.Cursor})
	if err != nil {
		return dasherr.FromError(err), nil
	}
	res := mcp.NewToolResultStructured(page, "")
	res.Content = []mcp.Content{mcp.NewTextContent(h.summarize(page))}
	return res, nil
}

func (h *handlers) export(ctx context.Context, req mcp.CallToolRequest, in ExportWorkbookInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return dasherr.FromText(msg), nil
	}
	opts := dashboard.ExportOptions{KeepHidden: in.KeepHidden}
	if dir := strings.TrimSpace(in.SaveDir); dir != "" {
		exp, err := h.svc.SaveExport(ctx, in.SessionID, dir, opts)
		if err != nil {
			return dasherr.FromError(err), nil
		}
		out := ExportWorkbookOutput{FileName: exp.FileName, MIMEType: exp.MIMEType, Bytes: len(exp.Data), Path: exp.Path}
		return mcp.NewToolResultStructured(out, "saved "+exp.Path), nil
	}
	exp, err := h.svc.Export(ctx, in.SessionID, opts)
	if err != nil {
		return dasherr.FromError(err), nil
	}
	encoded := base64.StdEncoding.EncodeToString(exp.Data)
	if h.limits.MaxPayloadBytes > 0 && len(encoded) > h.limits.MaxPayloadBytes {
		return dasherr.Wrapf(dasherr.LimitExceeded, "export is %d bytes encoded, payload limit %d; pass save_dir", len(encoded), h.limits.MaxPayloadBytes), nil
	}
	out := ExportWorkbookOutput{FileName: exp.FileName, MIMEType: exp.MIMEType, Bytes: len(exp.Data), Data: encoded}
	return mcp.NewToolResultStructured(out, fmt.Sprintf("%s (%d bytes)", exp.FileName, len(exp.Data))), nil
}

func stateResult(snap dashboard.Snapshot, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return dasherr.FromError(err), nil
	}
	summary := fmt.Sprintf("session=%s sheet=%q editing=%v ops=%d", snap.ID, snap.Sheet, snap.Edits.Enabled, len(snap.Edits.Ops))
	return mcp.NewToolResultStructured(SessionStateOutput{Session: snap}, summary), nil
}

// summarize renders a page as text for clients that ignore structured
// content, cut to the registry's summary budget.
func (h *handlers) summarize(p dashboard.Page) string {
	v := p.View
	var b strings.Builder
	fmt.Fprintf(&b, "sheet=%q rows=%d columns=%d numeric=%d missing=%d editing=%v\n",
		v.Sheet, v.Overview.Rows, v.Overview.Columns, v.Overview.NumericColumns, v.Overview.MissingValues, v.Editing)
	if v.Chart != nil {
		fmt.Fprintf(&b, "chart %s(%s) by %s:", v.Chart.Mode, v.Chart.Metric, v.Chart.Dimension)
		for _, pair := range v.Chart.Pairs {
			fmt.Fprintf(&b, " %s=%g", pair.Label, pair.Value)
		}
		b.WriteByte('\n')
	}
	if v.Trend != nil {
		fmt.Fprintf(&b, "trend sum(%s) by %s: %d points\n", v.Trend.Metric, v.Trend.DateColumn, len(v.Trend.Series))
	}
	for _, n := range v.Notices {
		b.WriteString("note: " + n + "\n")
	}
	b.WriteString(strings.Join(p.Columns, " | ") + "\n")
	for _, row := range p.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == nil {
				continue
			}
			cells[i] = fmt.Sprint(c)
		}
		b.WriteString(strings.Join(cells, " | ") + "\n")
	}
	fmt.Fprintf(&b, "page offset=%d returned=%d total=%d truncated=%v", p.Meta.Offset, p.Meta.Returned, p.Meta.Total, p.Meta.Truncated)
	if p.Meta.NextCursor != "" {
		b.WriteString(" next_cursor=" + p.Meta.NextCursor)
	}
	return truncate(b.String(), h.reg.SummaryBudget())
}

func truncate(s string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s
	}
	r := []rune(s)
	return string(r[:budget]) + "\n[truncated]"
}
