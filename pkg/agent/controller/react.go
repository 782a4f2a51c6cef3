package controller

import (
	"context"
	"strings"
	"time"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/parser"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

const reactFallbackAnswer = "Final answer generated by agent."

// React runs the multi-turn ReAct loop: unlike the iterative researcher it
// carries the full conversation forward, folding each tool call and its
// observation into a single user message.
type React struct {
	cfg Config
}

func NewReact(cfg Config) *React {
	return &React{cfg: cfg}
}

func (r *React) Run(ctx context.Context, question string, cb agent.ProgressFunc) *agent.Result {
	system := prompt.BaseSystem(prompt.Today(), r.cfg.Registry.Definitions(), r.cfg.Instruction)
	dispatcher := tools.NewDispatcher(r.cfg.Registry)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: question},
	}

	start := time.Now()
	remaining := r.cfg.maxCalls()
	round := 0
	opts := llm.Options{Stop: []string{ObservationStart}, MaxTries: 5}

	for remaining > 0 {
		if time.Since(start) > r.cfg.timeout() {
			return &agent.Result{
				Question:    question,
				Prediction:  "Final answer generated by agent (timeout).",
				Termination: "timeout",
				Trajectory:  messages,
			}
		}

		remaining--
		round++

		resp, err := r.cfg.Client.Complete(ctx, messages, opts)
		if err != nil {
			return &agent.Result{
				Question:    question,
				Prediction:  "LLM server error.",
				Termination: "unknown error",
				Trajectory:  messages,
			}
		}
		content := stripAfterObservation(resp.Content)
		if resp.Reasoning != "" {
			agent.Emit(cb, agent.Event{Type: agent.EventThinking, Round: round, Content: resp.Reasoning})
		}

		// Tool-call path: the assistant chatter is dropped and only the
		// call plus its observation survive, as one user message.
		if block, ok := extractToolCallBlock(content); ok {
			observation := dispatcher.InvokeRaw(ctx, block)
			agent.Emit(cb, agent.Event{Type: agent.EventTool, Round: round, ToolCall: block, Observation: observation})
			messages = append(messages, llm.Message{
				Role: llm.RoleUser,
				Content: "<tool_call>\n" + block + "\n</tool_call>\n" +
					ObservationStart + "\n" + observation + ObservationEnd,
			})
			continue
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: content})
		agent.Emit(cb, agent.Event{Type: agent.EventRound, Round: round, Answer: content, Reasoning: resp.Reasoning})

		answer, terminate := parser.ParseFinal(content)
		if answer != "" {
			return &agent.Result{
				Question:    question,
				Prediction:  answer,
				Termination: "terminated with answer",
				Trajectory:  messages,
			}
		}
		if terminate {
			best := strings.TrimSpace(content)
			if best == "" {
				best = reactFallbackAnswer
			}
			return &agent.Result{
				Question:    question,
				Prediction:  best,
				Termination: "terminated without answer",
				Trajectory:  messages,
			}
		}

		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Please continue your analysis or provide the final answer using <answer> tags.",
		})

		if remaining == 0 {
			return r.forceFinal(ctx, question, messages, "finalized without answer tag")
		}
	}

	return r.forceFinal(ctx, question, messages, "exceed available llm calls (finalized without answer tag)")
}

// forceFinal issues one last call demanding an <answer>-only response.
func (r *React) forceFinal(ctx context.Context, question string, messages []llm.Message, fallbackTermination string) *agent.Result {
	forcedPrompt := "You have reached the limit. Stop tool calls. Provide the final response using " +
		"<answer> only. Do NOT include <tool_call> or <think>."
	if r.cfg.Instruction != "" {
		forcedPrompt += "\n\nRemember the task-specific instruction and follow it strictly:\n" + r.cfg.Instruction
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: forcedPrompt})

	resp, err := r.cfg.Client.Complete(ctx, messages, llm.Options{Stop: []string{ObservationStart}, MaxTries: 5})
	if err != nil {
		return &agent.Result{
			Question:    question,
			Prediction:  reactFallbackAnswer,
			Termination: fallbackTermination,
			Trajectory:  messages,
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

	answer, _ := parser.ParseFinal(resp.Content)
	if answer != "" {
		return &agent.Result{
			Question:    question,
			Prediction:  answer,
			Termination: "terminated with answer (forced)",
			Trajectory:  messages,
		}
	}
	prediction := strings.TrimSpace(resp.Content)
	if prediction == "" {
		prediction = reactFallbackAnswer
	}
	return &agent.Result{
		Question:    question,
		Prediction:  prediction,
		Termination: fallbackTermination,
		Trajectory:  messages,
	}
}

// stripAfterObservation cuts any hallucinated tool response off the model
// output; generation should have stopped at the tag already.
func stripAfterObservation(content string) string {
	if i := strings.Index(content, ObservationStart); i >= 0 {
		return strings.TrimSpace(content[:i])
	}
	return content
}

func extractToolCallBlock(content string) (string, bool) {
	start := strings.Index(content, "<tool_call>")
	if start < 0 {
		return "", false
	}
	rest := content[start+len("<tool_call>"):]
	end := strings.Index(rest, "</tool_call>")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
