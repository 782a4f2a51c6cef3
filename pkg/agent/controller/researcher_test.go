package controller

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

func TestResearcherAnswerFound(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<plan>check</plan>\n<report>R1</report>\n<answer>42</answer>"},
	}}
	rec := &eventRecorder{}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "what is the answer", rec.record)

	require.Equal(t, "42", res.Prediction)
	require.Equal(t, "answer found", res.Termination)
	assert.Equal(t, "R1", res.Report)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, []string{ObservationStart}, client.opts[0].Stop)

	finals := rec.byType(agent.EventFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, "42", finals[0].Answer)
}

func TestResearcherTerminateWithAnswer(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<report>R</report>\n<answer>done</answer>\n<terminate>finished</terminate>"},
	}}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "done", res.Prediction)
	assert.Equal(t, "terminate with answer", res.Termination)
}

func TestResearcherTerminatedByLLM(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<report>partial</report>\n<terminate>nothing more to find</terminate>"},
	}}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "nothing more to find", res.Prediction)
	assert.Equal(t, "terminated by llm", res.Termination)
}

func TestResearcherToolRoundTrip(t *testing.T) {
	search := &countingTool{name: "search", result: "RESULTS FOUND"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<plan>look it up</plan>\n<report>R1</report>\n" +
			`<tool_call>{"name": "search", "arguments": {"query": ["golang"]}}</tool_call>`},
		{Content: "<report>R2</report>\n<answer>found it</answer>"},
	}}
	rec := &eventRecorder{}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry(search)}).
		Run(context.Background(), "q", rec.record)

	require.Equal(t, "found it", res.Prediction)
	assert.Equal(t, 1, search.callCount())

	// The observation must reach the next round's workspace.
	second := client.request(1)
	require.Len(t, second, 2)
	assert.Contains(t, second[1].Content, "RESULTS FOUND")
	assert.Contains(t, second[1].Content, "R1")

	// And the trajectory keeps it wrapped in observation tags.
	var found bool
	for _, m := range res.Trajectory {
		if m.Role == llm.RoleUser && strings.Contains(m.Content, ObservationStart+"\nRESULTS FOUND") {
			found = true
		}
	}
	assert.True(t, found)

	toolEvents := rec.byType(agent.EventTool)
	require.Len(t, toolEvents, 1)
	assert.Equal(t, "RESULTS FOUND", toolEvents[0].Observation)
}

func TestResearcherLastCallFinalizes(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<plan>p</plan>\n<report>the accumulated report</report>"},
	}}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry(), MaxLLMCalls: 1}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "finalized without answer tag", res.Termination)
	assert.Equal(t, "the accumulated report", res.Prediction)

	first := client.request(0)
	require.Len(t, first, 3)
	assert.Equal(t, prompt.FinalizeInstruction, first[2].Content)
}

func TestResearcherForcedAnswer(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "I am not sure what to do next."},
		{Content: "<answer>forced answer</answer>"},
	}}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "forced answer", res.Prediction)
	assert.Equal(t, "answer (forced)", res.Termination)

	second := client.request(1)
	assert.Equal(t, prompt.ForceAnswerInstruction, second[len(second)-1].Content)
}

func TestResearcherFormatErrorAfterRetry(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "rambling without tags"},
		{Content: "still rambling"},
	}}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "No answer found (format error after retry).", res.Prediction)
	assert.Equal(t, "format error", res.Termination)
}

func TestResearcherFormatErrorWhenRetryFails(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "rambling without tags"},
		{Content: llm.DefaultFailureSentinel, Failed: true},
	}}
	rec := &eventRecorder{}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", rec.record)

	require.Equal(t, "No answer found (format error).", res.Prediction)
	assert.Equal(t, "format error", res.Termination)

	assert.Empty(t, rec.byType(agent.EventFinal))
	status := rec.byType(agent.EventStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "format error", status[0].Termination)
	assert.Equal(t, status[0], rec.events[len(rec.events)-1])
}

func TestResearcherTokenLimit(t *testing.T) {
	search := &countingTool{name: "search", result: "huge observation"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: `<report>R</report><tool_call>{"name": "search", "arguments": {"query": ["x"]}}</tool_call>`},
		{Content: "<answer>squeezed in</answer>"},
	}}

	res := NewResearcher(Config{
		Client:         client,
		Registry:       tools.NewRegistry(search),
		MaxInputTokens: 1,
	}).Run(context.Background(), "q", nil)

	require.Equal(t, "token limit reached", res.Termination)
	assert.Equal(t, "squeezed in", res.Prediction)

	second := client.request(1)
	assert.Equal(t, prompt.TokenLimitInstruction, second[len(second)-1].Content)
}

func TestResearcherTimeout(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Content: "<answer>never</answer>"}}}
	rec := &eventRecorder{}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry(), AgentTimeout: time.Nanosecond}).
		Run(context.Background(), "q", rec.record)

	require.Equal(t, "timeout", res.Termination)
	assert.Equal(t, "No answer found (timeout).", res.Prediction)
	assert.Zero(t, client.calls)

	// The stream still ends with a terminal event even though the loop
	// produced nothing.
	assert.Empty(t, rec.byType(agent.EventFinal))
	status := rec.byType(agent.EventStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "timeout", status[0].Termination)
	assert.Equal(t, res.Prediction, status[0].Answer)
	assert.Equal(t, status[0], rec.events[len(rec.events)-1])
}

func TestResearcherClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}

	res := NewResearcher(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Equal(t, "unknown error", res.Termination)
	assert.Equal(t, "Error: Unknown boom", res.Prediction)
}

func TestResearcherTemperatureOverride(t *testing.T) {
	temp := float32(0.9)
	client := &scriptedClient{responses: []llm.Response{{Content: "<answer>a</answer>"}}}

	NewResearcher(Config{Client: client, Registry: tools.NewRegistry(), Temperature: &temp}).
		Run(context.Background(), "q", nil)

	require.NotNil(t, client.opts[0].Temperature)
	assert.InDelta(t, 0.9, *client.opts[0].Temperature, 1e-6)
}
