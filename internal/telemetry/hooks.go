package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks implements mcp-go server lifecycle callbacks for logging and metrics.
type Hooks struct {
	logger  zerolog.Logger
	metrics *Metrics
	started sync.Map // request id -> time.Time
}

// NewHooks constructs a Hooks instance with the provided logger. Metrics may be nil.
func NewHooks(logger zerolog.Logger, metrics *Metrics) *Hooks {
	return &Hooks{logger: logger, metrics: metrics}
}

// OnSessionStart records the start of a client session.
func (h *Hooks) OnSessionStart(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session started")
}

// OnSessionEnd records the end of a client session.
func (h *Hooks) OnSessionEnd(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session ended")
}

// OnToolCall logs tool invocations and their outcomes.
func (h *Hooks) OnToolCall(toolName string, duration time.Duration, isError bool) {
	if h.metrics != nil {
		h.metrics.ObserveTool(toolName, isError)
	}
	if isError {
		h.logger.Warn().Str("tool", toolName).Dur("duration", duration).Msg("tool call returned error")
		return
	}
	h.logger.Info().Str("tool", toolName).Dur("duration", duration).Msg("tool call completed")
}

// MCP builds the mcp-go hook set wired to h.
func (h *Hooks) MCP() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.OnSessionStart(session.SessionID())
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.OnSessionEnd(session.SessionID())
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		h.started.Store(id, time.Now())
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		var d time.Duration
		if v, ok := h.started.LoadAndDelete(id); ok {
			d = time.Since(v.(time.Time))
		}
		h.OnToolCall(req.Params.Name, d, res != nil && res.IsError)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.started.Delete(id)
		h.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}
