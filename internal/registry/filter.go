package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// WriteToolFilter hides tools that change session data unless edits are
// enabled in configuration.
type WriteToolFilter struct {
	allowWrites bool
}

// NewWriteToolFilter constructs a filter from the features.enable_edits setting.
func NewWriteToolFilter(allowWrites bool) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: allowWrites}
}

// FilterTools implements server tool filtering semantics.
// When writes are disabled, tools named edit_* are excluded from discovery.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if strings.HasPrefix(strings.ToLower(t.Name), "edit_") {
			continue
		}
		out = append(out, t)
	}
	return out
}
