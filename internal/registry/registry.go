package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
)

// Registry maintains tool definitions and the client model used to size text summaries.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]mcp.Tool
	model string
}

// New constructs an empty Registry. model names the LLM expected to read tool
// results; unknown names fall back to langchaingo's default context size.
func New(model string) *Registry {
	return &Registry{
		tools: map[string]mcp.Tool{},
		model: model,
	}
}

// Register stores a tool definition for discovery.
func (r *Registry) Register(tool mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name] = tool
}

// Tools returns a stable-sorted list of registered tool definitions.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})

	return tools, nil
}

// ModelContextSize exposes the configured model's context window in tokens.
func (r *Registry) ModelContextSize() int {
	return llms.GetModelContextSize(r.model)
}

// SummaryBudget is the character budget for the text part of a tool result:
// an eighth of the model's context at roughly four characters per token.
func (r *Registry) SummaryBudget() int {
	return r.ModelContextSize() / 2
}
