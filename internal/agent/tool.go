package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/eddmann/jeeves/internal/llmclient"
)

// Tool is the contract every tool the agent can call must satisfy.
// Tools are opaque to the loop beyond this surface; memory_search is
// the one tool name the core requires to exist (wired by the caller
// to internal/memoryindex.SearchTool).
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Registry is a concurrency-safe lookup of tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name, returning ok=false if absent.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every registered tool's definition for the LLM
// client's tool catalogue, in registration order being unspecified
// (map iteration) since the model does not depend on ordering.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llmclient.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llmclient.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}
