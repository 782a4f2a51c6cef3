package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseThreePartResponse(t *testing.T) {
	text := `<plan>
Search for the winners first.
</plan>
<report>
No findings yet.
</report>
<tool_call>
{"name": "search", "arguments": {"query": ["Nobel Physics 2023"]}}
</tool_call>`

	out := Parse(text)
	assert.Equal(t, "Search for the winners first.", out.Plan)
	assert.Equal(t, "No findings yet.", out.Report)
	assert.Contains(t, out.ToolCall, `"name": "search"`)
	assert.Empty(t, out.Answer)
	assert.False(t, out.Terminate)
	assert.True(t, out.HasAction())
}

func TestParseLastNonEmptyWins(t *testing.T) {
	text := `<report></report>
Thinking about it...
<report>draft one</report>
<report>final version</report>
<answer>first</answer>
<answer>second</answer>`

	out := Parse(text)
	assert.Equal(t, "final version", out.Report)
	assert.Equal(t, "second", out.Answer)
}

func TestParseIdempotent(t *testing.T) {
	text := `<plan>p</plan><report>r</report><answer>a</answer>`
	first := Parse(text)
	second := Parse(text)
	assert.Equal(t, first, second)
}

func TestParseTerminateEmptyBodySetsFlag(t *testing.T) {
	out := Parse(`<report>done</report><terminate></terminate>`)
	assert.True(t, out.Terminate)
	assert.Empty(t, out.TerminateReason)
	assert.True(t, out.HasAction())
}

func TestParseTerminateBareTag(t *testing.T) {
	out := Parse(`<plan>done</plan>` + "\n<terminate>")
	assert.True(t, out.Terminate)
	assert.Empty(t, out.TerminateReason)
}

func TestParseTerminateWithReason(t *testing.T) {
	out := Parse(`<terminate>report already contains the answer</terminate>`)
	assert.True(t, out.Terminate)
	assert.Equal(t, "report already contains the answer", out.TerminateReason)
}

func TestParseNoActionTags(t *testing.T) {
	out := Parse("I think the answer might be Paris but let me reconsider.")
	assert.False(t, out.HasAction())
}

func TestParsePlannerStepPriority(t *testing.T) {
	// terminate beats write_outline beats tool_call
	out := ParsePlannerStep(`<tool_call>{"name":"search"}</tool_call><write_outline>1. Intro</write_outline><terminate>`)
	assert.Equal(t, ActionTerminate, out.Kind)

	out = ParsePlannerStep(`<tool_call>{"name":"search"}</tool_call><write_outline>1. Intro <citation>id_1</citation></write_outline>`)
	assert.Equal(t, ActionWriteOutline, out.Kind)
	assert.Equal(t, "1. Intro <citation>id_1</citation>", out.Payload)

	out = ParsePlannerStep(`<plan>need data</plan><tool_call>{"name":"search","arguments":{"query":["x"]}}</tool_call>`)
	assert.Equal(t, ActionToolCall, out.Kind)
	assert.Equal(t, "need data", out.Plan)
}

func TestParsePlannerStepError(t *testing.T) {
	out := ParsePlannerStep("just some prose with no tags")
	assert.Equal(t, ActionError, out.Kind)
	assert.Contains(t, out.Payload, "<write_outline>")
}

func TestParseWriterStep(t *testing.T) {
	out := ParseWriterStep(`<plan>write intro</plan><write>## 1.1 Intro

Content [cite:id_1].</write>`)
	assert.Equal(t, ActionWrite, out.Kind)
	assert.Contains(t, out.Payload, "[cite:id_1]")

	out = ParseWriterStep(`<tool_call>{"name":"retrieve","arguments":{"citation_ids":["id_1"]}}</tool_call>`)
	assert.Equal(t, ActionToolCall, out.Kind)

	out = ParseWriterStep("nothing structured here")
	assert.Equal(t, ActionError, out.Kind)
	assert.Contains(t, out.Payload, "retrieve")
}

func TestParseFinalAnswerWinsOverTerminate(t *testing.T) {
	answer, term := ParseFinal(`<terminate>stop</terminate><answer>Paris</answer>`)
	assert.True(t, term)
	assert.Equal(t, "Paris", answer)

	answer, term = ParseFinal(`<terminate>all done</terminate>`)
	assert.True(t, term)
	assert.Equal(t, "all done", answer)

	answer, term = ParseFinal("still working")
	assert.False(t, term)
	assert.Empty(t, answer)
}
