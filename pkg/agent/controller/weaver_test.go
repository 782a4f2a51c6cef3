package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

func TestWeaverRunsBothPhases(t *testing.T) {
	search := &countingTool{
		name:   "search",
		result: "A Google search for 'x' found 1 results:\n\n## Web Results\n1. [Go](https://go.dev)\nSource: go.dev\n\nThe Go programming language",
	}
	client := &scriptedClient{responses: []llm.Response{
		// Planner phase.
		{Content: "<plan>gather</plan>\n<tool_call>{\"name\": \"search\", \"arguments\": {\"query\": [\"go\"]}}</tool_call>"},
		{Content: "<write_outline>## Go [id_1]</write_outline>"},
		{Content: "<terminate/>"},
		// Writer phase.
		{Content: "<write>## Go\nGo is a language. [id_1]</write>"},
		{Content: "<terminate/>"},
	}}
	rec := &eventRecorder{}

	w := NewWeaver(Config{Client: client, Registry: tools.NewRegistry(search)})
	res := w.Run(context.Background(), "what is go", rec.record)

	require.Empty(t, res.Error)
	assert.Equal(t, "## Go [id_1]", res.FinalOutline)
	assert.Equal(t, "\n\n## Go\nGo is a language. [id_1]", res.FinalReport)
	assert.Equal(t, 1, res.MemoryBankSize)
	assert.Greater(t, res.TotalTimeSeconds, 0.0)

	// The planner's search observation is the memory-bank acknowledgement,
	// not the raw search output.
	assert.Contains(t, client.request(1)[1].Content, "Evidence added with id='id_1'")
	assert.Equal(t, 1, w.Bank().Size())

	phases := rec.byType(agent.EventPhaseComplete)
	require.Len(t, phases, 2)
	assert.Equal(t, "planner", phases[0].Phase)
	assert.Equal(t, "## Go [id_1]", phases[0].Outline)
	assert.Equal(t, 1, phases[0].MemoryBankSize)
	assert.Equal(t, "writer", phases[1].Phase)
	require.Len(t, rec.byType(agent.EventComplete), 1)
}

func TestWeaverWriterGetsOnlyRetrieve(t *testing.T) {
	search := &countingTool{name: "search", result: "should never run"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<terminate/>"},
		// The writer tries the search tool it no longer has.
		{Content: "<tool_call>{\"name\": \"search\", \"arguments\": {\"query\": [\"x\"]}}</tool_call>"},
		{Content: "<terminate/>"},
	}}

	res := NewWeaver(Config{Client: client, Registry: tools.NewRegistry(search)}).
		Run(context.Background(), "q", nil)

	require.Empty(t, res.Error)
	assert.Zero(t, search.callCount())
	assert.Contains(t, client.request(2)[1].Content, "Error")
}

func TestWeaverPlannerError(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}
	rec := &eventRecorder{}

	res := NewWeaver(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", rec.record)

	require.Equal(t, "Planner phase error: boom", res.Error)
	assert.Empty(t, res.FinalReport)

	errs := rec.byType(agent.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "planner", errs[0].Phase)
}

func TestWeaverWriterError(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.Response{{Content: "<terminate/>"}},
		err:       errors.New("boom"),
		failFrom:  2,
	}
	rec := &eventRecorder{}

	res := NewWeaver(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", rec.record)

	require.Equal(t, "Writer phase error: boom", res.Error)
	assert.Empty(t, res.FinalReport)

	errs := rec.byType(agent.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "writer", errs[0].Phase)
}
