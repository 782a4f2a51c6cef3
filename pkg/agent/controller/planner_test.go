package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

func TestPlannerOutlineFlow(t *testing.T) {
	search := &countingTool{name: "search", result: "Evidence added with id='id_1'. Summary: snippet"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<plan>gather</plan>\n<tool_call>{\"name\": \"search\", \"arguments\": {\"query\": [\"x\"]}}</tool_call>"},
		{Content: "<plan>outline</plan>\n<write_outline>## Section 1 [id_1]</write_outline>"},
		{Content: "<terminate/>"},
	}}
	rec := &eventRecorder{}

	outline, err := NewPlanner(Config{Client: client, Registry: tools.NewRegistry(search)}).
		Run(context.Background(), "q", rec.record)

	require.NoError(t, err)
	require.Equal(t, "## Section 1 [id_1]", outline)
	assert.Equal(t, 1, search.callCount())

	// The tool observation reaches step 2, the updated outline step 3.
	assert.Contains(t, client.request(1)[1].Content, "Evidence added with id='id_1'")
	third := client.request(2)[1].Content
	assert.Contains(t, third, "## Section 1 [id_1]")
	assert.Contains(t, third, prompt.OutlineUpdatedObservation)

	updated := rec.byType(agent.EventOutlineUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "planner", updated[0].Agent)
	assert.Equal(t, "## Section 1 [id_1]", updated[0].Outline)
	for _, ev := range rec.byType(agent.EventStep) {
		assert.Equal(t, "planner", ev.Agent)
	}
}

func TestPlannerFinalStepForcesOutline(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<write_outline>## Only Chance</write_outline>"},
	}}

	outline, err := NewPlanner(Config{Client: client, Registry: tools.NewRegistry(), MaxLLMCalls: 1}).
		Run(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, "## Only Chance", outline)
	assert.Contains(t, client.request(0)[1].Content, prompt.PlannerFinalStep)
}

func TestPlannerInvalidActionFeedback(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "no action tags at all"},
		{Content: "<terminate/>"},
	}}

	outline, err := NewPlanner(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, prompt.InitialOutline, outline)
	assert.Contains(t, client.request(1)[1].Content, "No valid action tag found")
}

func TestPlannerRetrySentinel(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{{Content: "<terminate/>"}}}

	_, err := NewPlanner(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, "Error: LLM server failed after all retries.", client.opts[0].FailureSentinel)
}

func TestPlannerClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}

	outline, err := NewPlanner(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", nil)

	require.Error(t, err)
	assert.Equal(t, prompt.InitialOutline, outline)
}
