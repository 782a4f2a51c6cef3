package controller

import (
	"context"
	"sync"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/llm"
)

// scriptedClient replays canned responses in order, repeating the last one
// when the script runs out. A reply func takes over when set, which the
// concurrency tests use to answer by request content instead of call order.
type scriptedClient struct {
	mu        sync.Mutex
	responses []llm.Response
	reply     func(msgs []llm.Message, opts llm.Options) (*llm.Response, error)
	err       error
	failFrom  int

	calls    int
	requests [][]llm.Message
	opts     []llm.Options
}

func (c *scriptedClient) Complete(_ context.Context, msgs []llm.Message, opts llm.Options) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.requests = append(c.requests, append([]llm.Message{}, msgs...))
	c.opts = append(c.opts, opts)
	reply := c.reply
	c.mu.Unlock()

	if reply != nil {
		return reply(msgs, opts)
	}
	if c.err != nil && (c.failFrom == 0 || call >= c.failFrom) {
		return nil, c.err
	}
	idx := call - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	resp := c.responses[idx]
	return &resp, nil
}

func (c *scriptedClient) request(i int) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

// countingTool records invocations and returns a fixed result.
type countingTool struct {
	mu       sync.Mutex
	name     string
	result   string
	calls    int
	lastArgs map[string]any
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return "test tool" }
func (t *countingTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}}
}

func (t *countingTool) Call(_ context.Context, args map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.lastArgs = args
	return t.result, nil
}

func (t *countingTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// eventRecorder collects progress events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []agent.Event
}

func (r *eventRecorder) record(ev agent.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) byType(typ string) []agent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []agent.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
