// Package tools implements the capability registry and dispatcher the agent
// loops call into, plus the built-in tool implementations (web search, page
// visit, scholar search, code sandbox, file parsing).
package tools

import (
	"context"

	"github.com/webresearcher/webresearcher/pkg/llm"
)

// Tool is one named capability the LLM can invoke. Call always returns a
// human-readable string; the LLM consumes it verbatim.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-Schema-shaped argument contract.
	Parameters() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to implementations. Registration happens before
// any loop starts; lookups afterwards are read-only.
type Registry struct {
	byName map[string]Tool
	order  []string
}

// NewRegistry builds a registry from the given tools, preserving order.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.byName[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Subset returns a registry restricted to the named tools. Unknown names are
// skipped; an empty whitelist returns the full registry.
func (r *Registry) Subset(names []string) *Registry {
	if len(names) == 0 {
		return r
	}
	sub := &Registry{byName: make(map[string]Tool)}
	for _, name := range names {
		if t, ok := r.byName[name]; ok {
			sub.Register(t)
		}
	}
	if len(sub.order) == 0 {
		return r
	}
	return sub
}

// Definitions renders the registry as native function-calling descriptors.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
