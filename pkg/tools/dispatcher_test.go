package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	params map[string]any
	calls  int
	result string
	err    error
	last   map[string]any
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]any {
	if s.params != nil {
		return s.params
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Call(_ context.Context, args map[string]any) (string, error) {
	s.calls++
	s.last = args
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func TestRegistrySubset(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "search"})
	reg.Register(&stubTool{name: "visit"})
	reg.Register(&stubTool{name: "python"})

	sub := reg.Subset([]string{"visit"})
	assert.Equal(t, []string{"visit"}, sub.Names())

	// An empty or fully unknown whitelist keeps the full registry.
	assert.Equal(t, []string{"search", "visit", "python"}, reg.Subset(nil).Names())
	assert.Equal(t, []string{"search", "visit", "python"}, reg.Subset([]string{"nope"}).Names())
}

func TestDispatcherInvokeRawJSON(t *testing.T) {
	stub := &stubTool{name: "search", result: "ok"}
	d := NewDispatcher(registryWith(stub))

	out := d.InvokeRaw(context.Background(), `{"name": "search", "arguments": {"query": ["golang"]}}`)
	assert.Equal(t, "ok", out)
	require.Equal(t, 1, stub.calls)
	assert.Equal(t, []any{"golang"}, stub.last["query"])
}

func TestDispatcherInvokeRawJSON5(t *testing.T) {
	stub := &stubTool{name: "search", result: "ok"}
	d := NewDispatcher(registryWith(stub))

	// Trailing comma and unquoted keys are tolerated.
	out := d.InvokeRaw(context.Background(), "{name: 'search', arguments: {query: ['a'],},}")
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, stub.calls)
}

func TestDispatcherInvokeRawCodeBlock(t *testing.T) {
	py := &stubTool{name: PythonToolName, result: "stdout:\n42"}
	d := NewDispatcher(registryWith(py))

	out := d.InvokeRaw(context.Background(), "{\"name\": \"python\"} <code>print(6*7)</code>")
	assert.Equal(t, "stdout:\n42", out)
	require.Equal(t, 1, py.calls)
	assert.Equal(t, "print(6*7)", py.last["code"])
}

func TestDispatcherInvokeRawParseError(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	out := d.InvokeRaw(context.Background(), "not a tool call at all {{{")
	assert.Contains(t, out, "Error: Tool call failed. Input: not a tool call at all {{{.")
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	out, cached := d.Invoke(context.Background(), "missing", map[string]any{})
	assert.False(t, cached)
	assert.Equal(t, "Error: Tool missing not found", out)
}

func TestDispatcherToolError(t *testing.T) {
	stub := &stubTool{name: "search", err: fmt.Errorf("boom")}
	d := NewDispatcher(registryWith(stub))

	out, _ := d.Invoke(context.Background(), "search", map[string]any{"query": []any{"x"}})
	assert.Equal(t, "Error: Tool execution failed. boom", out)
}

func TestDispatcherScalarPromotion(t *testing.T) {
	stub := &stubTool{
		name: "search",
		params: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "array"},
			},
		},
	}
	d := NewDispatcher(registryWith(stub))

	d.Invoke(context.Background(), "search", map[string]any{"query": "single"})
	assert.Equal(t, []any{"single"}, stub.last["query"])
}

func TestDispatcherCache(t *testing.T) {
	stub := &stubTool{name: "retrieve", result: "evidence"}
	d := NewDispatcher(registryWith(stub))

	args := map[string]any{"ids": []any{"id_1", "id_2"}}
	out, cached := d.Invoke(context.Background(), "retrieve", args)
	assert.Equal(t, "evidence", out)
	assert.False(t, cached)

	out, cached = d.Invoke(context.Background(), "retrieve", args)
	assert.Equal(t, "evidence", out)
	assert.True(t, cached)
	assert.Equal(t, 1, stub.calls, "second call must come from the cache")

	// Non-cacheable tools always execute.
	search := &stubTool{name: "search", result: "results"}
	d2 := NewDispatcher(registryWith(search))
	d2.Invoke(context.Background(), "search", map[string]any{"query": []any{"q"}})
	d2.Invoke(context.Background(), "search", map[string]any{"query": []any{"q"}})
	assert.Equal(t, 2, search.calls)
}

func TestCacheKeyIsOrderInsensitive(t *testing.T) {
	a, err := CacheKey("retrieve", map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	b, err := CacheKey("retrieve", map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "retrieve::")
}

func registryWith(ts ...Tool) *Registry {
	reg := NewRegistry()
	for _, tool := range ts {
		reg.Register(tool)
	}
	return reg
}
