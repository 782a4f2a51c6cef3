package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// PythonToolName is special-cased by the dispatcher: code may arrive inlined
// in a <code>...</code> tail after the JSON block instead of in arguments.
const PythonToolName = "python"

// Dispatcher executes tool calls for one agent-loop invocation. It owns the
// idempotent-call cache, so it must not be shared across loops.
type Dispatcher struct {
	reg       *Registry
	cacheable map[string]bool
	cache     map[string]string
}

// NewDispatcher builds a dispatcher over the registry. The default
// idempotent set is {retrieve}.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		cacheable: map[string]bool{"retrieve": true},
		cache:     make(map[string]string),
	}
}

// SetCacheable replaces the idempotent tool set.
func (d *Dispatcher) SetCacheable(names ...string) {
	d.cacheable = make(map[string]bool, len(names))
	for _, n := range names {
		d.cacheable[n] = true
	}
}

// InvokeRaw executes the payload of one <tool_call> block: permissive JSON
// of {"name": ..., "arguments": {...}}, optionally followed by a
// <code>...</code> tail for the python tool. Failures never propagate as
// errors; they come back as "Error: ..." strings for the LLM to read.
func (d *Dispatcher) InvokeRaw(ctx context.Context, block string) string {
	if code, ok := extractCode(block); ok {
		result, _ := d.Invoke(ctx, PythonToolName, map[string]any{"code": code})
		return result
	}

	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json5.Unmarshal([]byte(block), &call); err != nil {
		return fmt.Sprintf("Error: Tool call failed. Input: %s. Error: %v", block, err)
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	result, _ := d.Invoke(ctx, call.Name, call.Arguments)
	return result
}

// Invoke dispatches one normalized call. The bool reports whether the result
// was served from the idempotent-call cache.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (string, bool) {
	tool, ok := d.reg.Get(name)
	if !ok {
		return fmt.Sprintf("Error: Tool %s not found", name), false
	}

	args = normalizeArgs(tool, args)

	cacheKey := ""
	if d.cacheable[name] {
		if key, err := CacheKey(name, args); err == nil {
			cacheKey = key
			if cached, hit := d.cache[cacheKey]; hit {
				slog.Debug("Tool call cache hit", "tool", name)
				return cached, true
			}
		}
	}

	result, err := tool.Call(ctx, args)
	if err != nil {
		slog.Error("Tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: Tool execution failed. %v", err), false
	}

	if cacheKey != "" {
		d.cache[cacheKey] = result
	}
	return result, false
}

// CacheKey builds the canonical cache key for a call: "name::" plus the
// sorted-key JSON of the arguments.
func CacheKey(name string, args map[string]any) (string, error) {
	// encoding/json writes map keys in sorted order, which makes the
	// encoding canonical.
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return name + "::" + string(data), nil
}

// normalizeArgs auto-corrects common LLM mistakes: a scalar supplied for a
// schema-declared array field is promoted to a single-element list.
func normalizeArgs(tool Tool, args map[string]any) map[string]any {
	params := tool.Parameters()
	props, _ := params["properties"].(map[string]any)
	for field, schema := range props {
		spec, ok := schema.(map[string]any)
		if !ok || spec["type"] != "array" {
			continue
		}
		if v, present := args[field]; present {
			if _, isList := v.([]any); !isList {
				args[field] = []any{v}
			}
		}
	}
	return args
}

// extractCode pulls the inline python source out of a <code>...</code> tail.
func extractCode(block string) (string, bool) {
	start := strings.Index(block, "<code>")
	end := strings.LastIndex(block, "</code>")
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(block[start+len("<code>") : end]), true
}
