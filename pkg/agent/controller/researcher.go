// Package controller implements the agent loops: the iterative researcher,
// the plain ReAct loop, the planner/writer pair with its orchestrator, and
// the parallel-sampling synthesizer.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/parser"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

// Observation delimiters. Tool results travel back to the model between
// these tags, and generation stops when the model starts to hallucinate one.
const (
	ObservationStart = "<tool_response>"
	ObservationEnd   = "\n</tool_response>"
)

// Config carries the knobs shared by every loop.
type Config struct {
	Client         llm.Client
	Registry       *tools.Registry
	Instruction    string
	MaxLLMCalls    int
	AgentTimeout   time.Duration
	MaxInputTokens int
	// Model is used for token counting only.
	Model string
	// Temperature overrides the client default when set. The parallel
	// sampler uses it to diversify its researchers.
	Temperature *float32
}

func (c *Config) maxCalls() int {
	if c.MaxLLMCalls > 0 {
		return c.MaxLLMCalls
	}
	return 100
}

func (c *Config) timeout() time.Duration {
	if c.AgentTimeout > 0 {
		return c.AgentTimeout
	}
	return 30 * time.Minute
}

func (c *Config) tokenBudget() int {
	if c.MaxInputTokens > 0 {
		return c.MaxInputTokens
	}
	return 32000
}

// Researcher runs the iterative deep-research loop: each round the model
// sees only the question, its own evolving report, and the last observation,
// and answers with a plan, an updated report, and one action.
type Researcher struct {
	cfg Config
}

func NewResearcher(cfg Config) *Researcher {
	return &Researcher{cfg: cfg}
}

// Run executes the loop until the model answers, terminates, or a budget
// runs out. The returned result always carries a non-empty prediction.
func (r *Researcher) Run(ctx context.Context, question string, cb agent.ProgressFunc) *agent.Result {
	start := time.Now()
	system := prompt.IterResearchSystem(prompt.Today(), r.cfg.Registry.Definitions(), r.cfg.Instruction)
	dispatcher := tools.NewDispatcher(r.cfg.Registry)

	report := prompt.InitialReport
	observation := prompt.InitialObservation
	var trajectory []llm.Message
	var prediction, termination string

	callsAvailable := r.cfg.maxCalls()
	round := 0
	stop := []string{ObservationStart}

	// Every exit path ends the event stream with a terminal event: final
	// when the loop produced something, status otherwise.
	finalEmitted := false
	emitFinal := func() {
		finalEmitted = true
		agent.Emit(cb, agent.Event{Type: agent.EventFinal, Round: round, Answer: prediction, Report: report, Termination: termination})
	}

	for callsAvailable > 0 {
		if time.Since(start) > r.cfg.timeout() {
			slog.Warn("Research loop timeout reached", "question", question)
			prediction = "No answer found (timeout)."
			termination = "timeout"
			break
		}

		round++
		callsAvailable--
		isLastCall := callsAvailable == 0

		// s_t = (Q, R_{i-1}, O_{i-1})
		currentContext := []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: prompt.ResearcherWorkspace(question, report, observation)},
		}
		if round == 1 {
			trajectory = append(trajectory, currentContext...)
		}

		requestMsgs := currentContext
		if isLastCall {
			requestMsgs = append(currentContext, llm.Message{Role: llm.RoleUser, Content: prompt.FinalizeInstruction})
		}

		resp, err := r.cfg.Client.Complete(ctx, requestMsgs, llm.Options{Stop: stop, Temperature: r.cfg.Temperature})
		if err != nil {
			prediction = fmt.Sprintf("Error: Unknown %v", err)
			termination = "unknown error"
			break
		}
		content := resp.Content
		if resp.Reasoning != "" {
			agent.Emit(cb, agent.Event{Type: agent.EventThinking, Round: round, Content: resp.Reasoning})
		}
		trajectory = append(trajectory, llm.Message{Role: llm.RoleAssistant, Content: content})

		out := parser.Parse(content)
		agent.Emit(cb, agent.Event{
			Type:      agent.EventRound,
			Round:     round,
			Plan:      out.Plan,
			Report:    out.Report,
			Action:    out.ToolCall,
			Answer:    out.Answer,
			Terminate: out.Terminate,
			Reasoning: resp.Reasoning,
		})

		// R_i replaces R_{i-1} only when present.
		if out.Report != "" {
			report = out.Report
		}

		if out.Answer != "" {
			prediction = out.Answer
			termination = "answer found"
			if out.Terminate {
				termination = "terminate with answer"
			}
			emitFinal()
			break
		}

		if out.Terminate {
			prediction = strings.TrimSpace(out.TerminateReason)
			if prediction == "" {
				prediction = strings.TrimSpace(report)
			}
			termination = "terminated by llm"
			emitFinal()
			break
		}

		if isLastCall {
			prediction = strings.TrimSpace(report)
			if prediction == "" {
				prediction = observation
			}
			termination = "finalized without answer tag"
			emitFinal()
			slog.Warn("Last LLM call returned neither <answer> nor <terminate>, promoting report")
			break
		}

		if out.ToolCall != "" {
			observation = dispatcher.InvokeRaw(ctx, out.ToolCall)
			agent.Emit(cb, agent.Event{Type: agent.EventTool, Round: round, ToolCall: out.ToolCall, Observation: observation})
			trajectory = append(trajectory, llm.Message{
				Role:    llm.RoleUser,
				Content: ObservationStart + "\n" + observation + ObservationEnd,
			})
		} else {
			// Neither an action nor an answer: one recovery call.
			forced, ok := r.forceAnswer(ctx, currentContext, prompt.ForceAnswerInstruction)
			if !ok {
				prediction = "No answer found (format error)."
				termination = "format error"
				break
			}
			if forced.Answer != "" {
				prediction = forced.Answer
				termination = "answer (forced)"
				emitFinal()
				trajectory = append(trajectory, llm.Message{Role: llm.RoleAssistant, Content: forced.Raw})
				break
			}
			slog.Error("Forced answer generation produced no <answer>")
			prediction = "No answer found (format error after retry)."
			termination = "format error"
			break
		}

		// Context budget check happens after the tool ran so the
		// observation is already folded into the report next round.
		if llm.CountMessages(requestMsgs, r.cfg.Model) > r.cfg.tokenBudget() {
			forced, ok := r.forceAnswer(ctx, currentContext, prompt.TokenLimitInstruction)
			prediction = "No answer found (token limit)."
			if ok && forced.Answer != "" {
				prediction = forced.Answer
			}
			termination = "token limit reached"
			emitFinal()
			if ok {
				trajectory = append(trajectory, llm.Message{Role: llm.RoleAssistant, Content: forced.Raw})
			}
			break
		}
	}

	if prediction == "" {
		if fallback := strings.TrimSpace(report); fallback != "" {
			prediction = fallback
			if termination == "" {
				termination = "report fallback"
			}
		} else if callsAvailable == 0 {
			prediction = "No answer found (exceeded available LLM calls)."
			termination = "exceed available llm calls"
		} else {
			prediction = "No answer found."
			termination = "answer not found"
		}
	}

	if !finalEmitted {
		agent.Emit(cb, agent.Event{
			Type:        agent.EventStatus,
			Round:       round,
			Status:      termination,
			Answer:      prediction,
			Report:      report,
			Termination: termination,
		})
	}

	return &agent.Result{
		Question:    question,
		Prediction:  prediction,
		Report:      report,
		Termination: termination,
		Trajectory:  trajectory,
	}
}

type forcedAnswer struct {
	Answer string
	Raw    string
}

// forceAnswer issues one extra LLM call with an instruction appended to the
// current context. This call is outside the round budget.
func (r *Researcher) forceAnswer(ctx context.Context, currentContext []llm.Message, instruction string) (forcedAnswer, bool) {
	msgs := append(append([]llm.Message{}, currentContext...), llm.Message{Role: llm.RoleUser, Content: instruction})
	resp, err := r.cfg.Client.Complete(ctx, msgs, llm.Options{Temperature: r.cfg.Temperature})
	if err != nil || resp.Failed {
		return forcedAnswer{}, false
	}
	out := parser.Parse(resp.Content)
	return forcedAnswer{Answer: out.Answer, Raw: resp.Content}, true
}
