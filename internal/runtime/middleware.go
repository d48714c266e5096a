package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/sheetboard/pkg/dasherr"
)

// Middleware enforces runtime limits for tool calls and HTTP requests using
// the Controller. It bounds global concurrency and applies an operation
// timeout to each call.
type Middleware struct {
	ctrl *Controller
}

// NewMiddleware constructs a Middleware bound to the provided Controller.
func NewMiddleware(ctrl *Controller) *Middleware {
	return &Middleware{ctrl: ctrl}
}

func (m *Middleware) busyMessage() string {
	return fmt.Sprintf("concurrent request limit reached (max=%d). Please retry shortly.", m.ctrl.limits.MaxConcurrentRequests)
}

// ToolMiddleware implements mcp-go's tool handler middleware interface.
// It acquires a request slot, applies a timeout, and guarantees release.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := m.ctrl.acquireBounded(ctx); err != nil {
			// Return a tool-level error so the client can self-correct/retry.
			return dasherr.New(dasherr.BusyResource, m.busyMessage()), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx, cancel := m.ctrl.withOperationTimeout(ctx)
		defer cancel()

		res, err := next(callCtx, req)

		// If the underlying handler surfaced a context deadline, prefer a tool-level timeout error.
		if errors.Is(err, context.DeadlineExceeded) || (callCtx.Err() == context.DeadlineExceeded && err == nil && res == nil) {
			return dasherr.New(dasherr.Timeout, ""), nil
		}
		return res, err
	}
}

// HTTPMiddleware applies the same guardrails to HTTP handlers. Saturation is
// reported as 503 with the catalog's JSON error body.
func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.ctrl.acquireBounded(r.Context()); err != nil {
			render.Status(r, dasherr.HTTPStatus(dasherr.BusyResource))
			render.JSON(w, r, dasherr.NewBody(dasherr.BusyResource, m.busyMessage()))
			return
		}
		defer m.ctrl.ReleaseRequest()

		ctx, cancel := m.ctrl.withOperationTimeout(r.Context())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
