package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/goalflow/core"
)

// Registry is a thread-safe collection of tools keyed by name. Nodes declare
// which registered tools they may call; the registry resolves those names
// and dispatches calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool. Registering a name twice replaces the earlier tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Resolve maps declared tool names to tools. Unknown names fail resolution;
// a node must not silently run with fewer tools than it declared.
func (r *Registry) Resolve(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool: %q is not registered", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Execute dispatches a call to the named tool. Unknown tools yield a
// *ToolError with code UNKNOWN_TOOL so models receive a structured failure
// they can react to.
func (r *Registry) Execute(toolCtx *core.ToolContext, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, NewToolError(name, fmt.Sprintf("tool %q is not registered", name), "UNKNOWN_TOOL")
	}
	return t.Call(toolCtx, args)
}
