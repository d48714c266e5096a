package registry

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/sheetboard/internal/dashboard"
	"github.com/vinodismyname/sheetboard/internal/edit"
	"github.com/vinodismyname/sheetboard/internal/runtime"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
)

func fixtureBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Plants"))
	rows := [][]any{
		{"Name", "Region", "Capacity"},
		{"Alpha", "North", 120},
		{"Bravo", "South", 80},
		{"Charlie", "North", 300},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Plants", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newHandlers(t *testing.T, editsEnabled bool) *handlers {
	t.Helper()
	mgr := workbooks.NewManager(time.Minute, time.Minute, 2, nil, nil)
	svc := dashboard.NewService(mgr, dashboard.NewStore(4, time.Hour, nil), dashboard.Options{EditsEnabled: editsEnabled})
	return &handlers{svc: svc, reg: New("gpt-4"), limits: runtime.NewLimits(4, 2)}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func openFixture(t *testing.T, h *handlers) OpenWorkbookOutput {
	t.Helper()
	res, err := h.open(context.Background(), mcp.CallToolRequest{}, OpenWorkbookInput{
		Data: base64.StdEncoding.EncodeToString(fixtureBytes(t)),
		Name: "plants.xlsx",
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	out, ok := res.StructuredContent.(OpenWorkbookOutput)
	require.True(t, ok)
	return out
}

func TestRegistry_ToolsSortedAndFiltered(t *testing.T) {
	srv := server.NewMCPServer("test", "0.0.0")
	reg := New("gpt-4")
	h := newHandlers(t, true)
	RegisterDashboardTools(srv, reg, h.svc, h.limits)

	tools, err := reg.Tools(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"close_session", "edit_rows", "export_workbook", "open_workbook", "render_view", "select_sheet", "set_chart", "set_filters"}, names)

	filtered := NewWriteToolFilter(false).FilterTools(context.Background(), tools)
	require.Len(t, filtered, len(tools)-1)
	for _, tool := range filtered {
		require.NotEqual(t, "edit_rows", tool.Name)
	}
	require.Len(t, NewWriteToolFilter(true).FilterTools(context.Background(), tools), len(tools))
}

func TestRegistry_SummaryBudget(t *testing.T) {
	reg := New("gpt-4")
	require.Equal(t, 8192, reg.ModelContextSize())
	require.Equal(t, 4096, reg.SummaryBudget())

	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab\n[truncated]", truncate("abcdef", 2))
}

func TestHandlers_OpenRenderEditExport(t *testing.T) {
	ctx := context.Background()
	h := newHandlers(t, true)
	out := openFixture(t, h)
	require.Equal(t, "Plants", out.Sheet)
	require.Equal(t, []string{"Plants"}, out.Sheets)
	require.True(t, out.EditsAvailable)

	res, err := h.setFilters(ctx, mcp.CallToolRequest{}, SetFiltersInput{SessionID: out.SessionID, CategoryColumn: "Region", Categories: []string{"North"}})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	on := true
	res, err = h.editRows(ctx, mcp.CallToolRequest{}, EditRowsInput{SessionID: out.SessionID, Enabled: &on, Ops: []edit.Op{{Kind: edit.Update, Row: 0, Column: "Capacity", Value: "150"}}})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	res, err = h.render(ctx, mcp.CallToolRequest{}, RenderViewInput{SessionID: out.SessionID})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	page, ok := res.StructuredContent.(dashboard.Page)
	require.True(t, ok)
	require.Equal(t, 2, page.Meta.Total)
	total := 0.0
	for _, pair := range page.View.Chart.Pairs {
		total += pair.Value
	}
	require.Equal(t, 450.0, total)
	text := resultText(t, res)
	require.Contains(t, text, "chart sum(Capacity) by Name")
	require.Contains(t, text, "Alpha | North | 150")

	res, err = h.export(ctx, mcp.CallToolRequest{}, ExportWorkbookInput{SessionID: out.SessionID})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	exp, ok := res.StructuredContent.(ExportWorkbookOutput)
	require.True(t, ok)
	require.Equal(t, "Plants_atualizado.xlsx", exp.FileName)
	data, err := base64.StdEncoding.DecodeString(exp.Data)
	require.NoError(t, err)
	require.Equal(t, exp.Bytes, len(data))
}

func TestHandlers_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHandlers(t, false)

	res, err := h.open(ctx, mcp.CallToolRequest{}, OpenWorkbookInput{Path: "notes.txt"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "VALIDATION:"))

	res, err = h.open(ctx, mcp.CallToolRequest{}, OpenWorkbookInput{Data: base64.StdEncoding.EncodeToString([]byte("not a zip")), Name: "x.xlsx"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "PARSE_FAILED:"))

	res, err = h.render(ctx, mcp.CallToolRequest{}, RenderViewInput{SessionID: "6f1c2a7e-8d1b-4f5e-9a0c-1b2c3d4e5f60"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "INVALID_SESSION:"))

	out := openFixture(t, h)
	on := true
	res, err = h.editRows(ctx, mcp.CallToolRequest{}, EditRowsInput{SessionID: out.SessionID, Enabled: &on})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "EDITING_DISABLED:"))

	res, err = h.setChart(ctx, mcp.CallToolRequest{}, SetChartInput{SessionID: out.SessionID, Mode: "median"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "VALIDATION:"))

	res, err = h.setChart(ctx, mcp.CallToolRequest{}, SetChartInput{SessionID: out.SessionID, Metric: "Region"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "INVALID_COLUMN:"))

	res, err = h.selectSheet(ctx, mcp.CallToolRequest{}, SelectSheetInput{SessionID: out.SessionID, Sheet: "Ghost"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(t, res), "INVALID_SHEET:"))

	res, err = h.close(ctx, mcp.CallToolRequest{}, SessionInput{SessionID: out.SessionID})
	require.NoError(t, err)
	require.False(t, res.IsError)
}
