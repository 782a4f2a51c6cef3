// Package prompt holds the system prompts and prompt builders for every
// agent loop. Prompts are rendered from the tool registry at loop start so
// the model always sees the schemas of the tools it can actually call.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/webresearcher/webresearcher/pkg/llm"
)

// Today renders the date the way the system prompts expect it.
func Today() string {
	return time.Now().Format("2006-01-02")
}

const baseSystem = `You are a deep research assistant. Today is %s.
Your core function is to conduct thorough, multi-source investigations into any topic. You must handle both broad, open-domain inquiries and queries within specialized academic fields. For every request, synthesize information from credible, diverse sources to deliver a comprehensive, accurate, and objective response. When you have gathered sufficient information and are ready to provide the definitive response, you must enclose the entire final answer within <answer></answer> tags.

# Tools

You may call one or more functions to assist with the user query.

You are provided with function signatures within <tools></tools> XML tags:
<tools>
%s
</tools>

For each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:
<tool_call>
{"name": <function-name>, "arguments": <args-json-object>}
</tool_call>
`

// BaseSystem renders the ReAct system prompt with the tool schemas inlined.
// A non-empty instruction is appended as a mandatory task-specific section.
func BaseSystem(today string, defs []llm.ToolDefinition, instruction string) string {
	out := fmt.Sprintf(baseSystem, today, ToolsText(defs))
	if instruction != "" {
		out += "\n\n# Task-specific Instruction\n" + instruction +
			"\n\nThe above instruction is mandatory. Always follow it throughout the conversation."
	}
	return out
}

type toolSchema struct {
	Type     string         `json:"type"`
	Function toolSchemaBody `json:"function"`
}

type toolSchemaBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolsText renders one function-calling schema JSON object per line.
func ToolsText(defs []llm.ToolDefinition) string {
	lines := make([]string, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}, "required": []any{}}
		}
		data, err := json.Marshal(toolSchema{
			Type: "function",
			Function: toolSchemaBody{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

// PersonaSuffix renders the optional per-session instruction block used by
// the iterative loops.
func PersonaSuffix(instruction string) string {
	if instruction == "" {
		return ""
	}
	return "\n\nAdditional persona instructions:\n" + instruction + "\n"
}
