package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webresearcher/webresearcher/pkg/llm"
)

func TestBaseSystemIncludesToolSchemas(t *testing.T) {
	defs := []llm.ToolDefinition{
		{
			Name:        "search",
			Description: "Perform Google web searches.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "array"}},
				"required":   []any{"query"},
			},
		},
	}
	out := BaseSystem("2026-08-26", defs, "")
	assert.Contains(t, out, "Today is 2026-08-26")
	assert.Contains(t, out, `"name":"search"`)
	assert.Contains(t, out, "<tools>")
	assert.NotContains(t, out, "# Task-specific Instruction")
}

func TestBaseSystemAppendsInstruction(t *testing.T) {
	out := BaseSystem("2026-08-26", nil, "Answer like a pirate.")
	assert.Contains(t, out, "# Task-specific Instruction\nAnswer like a pirate.")
	assert.Contains(t, out, "The above instruction is mandatory.")
}

func TestToolsTextSynthesizesEmptyParameters(t *testing.T) {
	out := ToolsText([]llm.ToolDefinition{{Name: "custom"}})
	assert.Contains(t, out, `"parameters":{"properties":{},"required":[],"type":"object"}`)
}

func TestResearcherWorkspace(t *testing.T) {
	out := ResearcherWorkspace("Q", InitialReport, InitialObservation)
	assert.Equal(t, "**Question:** Q\n\n**Current Report (R_{i-1}):**\nThis is the first round. The report is empty.\n\n**Last Observation (O_{i-1}):**\nThis is the first round. No tool has been called yet.", out)
}

func TestPlannerAndWriterContexts(t *testing.T) {
	p := PlannerContext("Q", InitialOutline, InitialPlannerObservation)
	assert.Contains(t, p, "[Question]\nQ")
	assert.Contains(t, p, "[Current Outline]\nOutline is empty. Start by searching for information.")
	assert.Contains(t, p, "SAME LANGUAGE as the [Question] above. Do NOT translate.")

	w := WriterContext("Q", "1. Intro", "", InitialWriterObservation)
	assert.Contains(t, w, "[Final Outline]\n1. Intro")
	assert.Contains(t, w, "[Report Written So Far]\n\n")
	assert.Contains(t, w, "CRITICAL LANGUAGE REQUIREMENT")
}

func TestSynthesisUser(t *testing.T) {
	out := SynthesisUser("Q", []ResearcherFinding{
		{Answer: "A1", Report: "R1", Termination: "answer found"},
		{},
	})
	assert.Contains(t, out, "[Original Research Question]\nQ")
	assert.Contains(t, out, "--- Researcher 1 (status: answer found) ---")
	assert.Contains(t, out, "[Researcher 1's Answer]\nA1")
	assert.Contains(t, out, "--- Researcher 2 (status: unknown) ---")
	assert.Contains(t, out, "[Researcher 2's Answer]\nN/A")
}

func TestIterResearchSystem(t *testing.T) {
	out := IterResearchSystem("2026-08-26", nil, "persona")
	assert.Contains(t, out, "You are WebResearcher")
	assert.Contains(t, out, "Additional persona instructions:\npersona")
	assert.Contains(t, out, "<plan>, <report>, and <tool_call> (or <answer> or <terminate>)")
}
