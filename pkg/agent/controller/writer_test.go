package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

const retrieveCall = `<tool_call>{"name": "retrieve", "arguments": {"citation_ids": ["id_1"]}}</tool_call>`

func TestWriterSectionFlow(t *testing.T) {
	retrieve := &countingTool{name: "retrieve", result: "[id_1]\nevidence body"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<plan>get evidence</plan>\n" + retrieveCall},
		{Content: "<plan>write it</plan>\n<write>## Section 1\nBody text. [id_1]</write>"},
		{Content: "<terminate/>"},
	}}
	rec := &eventRecorder{}

	report, err := NewWriter(Config{Client: client, Registry: tools.NewRegistry(retrieve)}).
		Run(context.Background(), "q", "## Section 1 [id_1]", rec.record)

	require.NoError(t, err)
	require.Equal(t, "\n\n## Section 1\nBody text. [id_1]", report)
	assert.Equal(t, 1, retrieve.callCount())

	// Step 2 sees the evidence, step 3 the write acknowledgement.
	assert.Contains(t, client.request(1)[1].Content, "[id_1]\nevidence body")
	assert.Contains(t, client.request(2)[1].Content, "Section written successfully:\n## Section 1")

	written := rec.byType(agent.EventSectionWritten)
	require.Len(t, written, 1)
	assert.Equal(t, "writer", written[0].Agent)
}

func TestWriterDuplicateRetrieveServedFromCache(t *testing.T) {
	retrieve := &countingTool{name: "retrieve", result: "[id_1]\nevidence body"}
	client := &scriptedClient{responses: []llm.Response{
		{Content: retrieveCall},
		// Same arguments again, different whitespace.
		{Content: `<tool_call>{"name": "retrieve", "arguments": {"citation_ids": ["id_1"]} }</tool_call>`},
		{Content: retrieveCall},
		{Content: "<write>## S</write>"},
		{Content: "<terminate/>"},
	}}

	report, err := NewWriter(Config{Client: client, Registry: tools.NewRegistry(retrieve)}).
		Run(context.Background(), "q", "outline", nil)

	require.NoError(t, err)
	assert.Equal(t, "\n\n## S", report)
	// Every repeat is served from the cache, however often it recurs.
	assert.Equal(t, 1, retrieve.callCount())

	for _, i := range []int{2, 3} {
		ctxMsg := client.request(i)[1].Content
		assert.Contains(t, ctxMsg, "Evidence already retrieved:")
		assert.Contains(t, ctxMsg, "You MUST now proceed to <write> the section.")
	}
}

func TestWriterIdleNudge(t *testing.T) {
	retrieve := &countingTool{name: "retrieve", result: "[id]\nx"}
	var responses []llm.Response
	for i := 0; i < maxIdleBeforeWriteHint; i++ {
		responses = append(responses, llm.Response{
			Content: fmt.Sprintf(`<tool_call>{"name": "retrieve", "arguments": {"citation_ids": ["id_%d"]}}</tool_call>`, i),
		})
	}
	responses = append(responses, llm.Response{Content: "<terminate/>"})
	client := &scriptedClient{responses: responses}

	_, err := NewWriter(Config{Client: client, Registry: tools.NewRegistry(retrieve)}).
		Run(context.Background(), "q", "outline", nil)

	require.NoError(t, err)
	// After six steps without a write, the nudge lands in the next context.
	assert.NotContains(t, client.request(maxIdleBeforeWriteHint-1)[1].Content, prompt.WriterIdleNudge)
	assert.Contains(t, client.request(maxIdleBeforeWriteHint)[1].Content, prompt.WriterIdleNudge)
}

func TestWriterFinalStepForcesWrite(t *testing.T) {
	client := &scriptedClient{responses: []llm.Response{
		{Content: "<write>## Last Section</write>"},
	}}

	report, err := NewWriter(Config{Client: client, Registry: tools.NewRegistry(), MaxLLMCalls: 1}).
		Run(context.Background(), "q", "outline", nil)

	require.NoError(t, err)
	assert.Equal(t, "\n\n## Last Section", report)
	assert.Contains(t, client.request(0)[1].Content, prompt.WriterFinalStep)
}

func TestWriterClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}

	report, err := NewWriter(Config{Client: client, Registry: tools.NewRegistry()}).
		Run(context.Background(), "q", "outline", nil)

	require.Error(t, err)
	assert.Empty(t, report)
}
