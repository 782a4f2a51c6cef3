package controller

import (
	"context"
	"log/slog"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/parser"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

// Planner explores a research question and produces a citation-grounded
// outline. Its tools store evidence in the shared memory bank and return
// citation IDs as observations.
type Planner struct {
	cfg Config
}

func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Run iterates until the model terminates or the step budget runs out, and
// returns the final outline.
func (p *Planner) Run(ctx context.Context, question string, cb agent.ProgressFunc) (string, error) {
	emit := func(ev agent.Event) {
		ev.Agent = "planner"
		agent.Emit(cb, ev)
	}

	system := prompt.PlannerSystem(prompt.Today(), p.cfg.Registry.Names(), p.cfg.Instruction)
	dispatcher := tools.NewDispatcher(p.cfg.Registry)

	outline := prompt.InitialOutline
	observation := prompt.InitialPlannerObservation
	maxSteps := p.cfg.maxCalls()

	for i := 0; i < maxSteps; i++ {
		contextStr := prompt.PlannerContext(question, outline, observation)
		if i == maxSteps-1 {
			contextStr += prompt.PlannerFinalStep
		}
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: contextStr},
		}

		resp, err := p.cfg.Client.Complete(ctx, messages, llm.Options{
			Stop:            []string{ObservationStart},
			FailureSentinel: "Error: LLM server failed after all retries.",
		})
		if err != nil {
			return outline, err
		}
		if resp.Reasoning != "" {
			emit(agent.Event{Type: agent.EventThinking, Step: i + 1, Content: resp.Reasoning})
		}

		step := parser.ParsePlannerStep(resp.Content)
		emit(agent.Event{
			Type:       agent.EventStep,
			Step:       i + 1,
			Plan:       step.Plan,
			ActionType: string(step.Kind),
			Reasoning:  resp.Reasoning,
		})

		switch step.Kind {
		case parser.ActionTerminate:
			slog.Debug("Planner finished, terminating")
			return outline, nil

		case parser.ActionWriteOutline:
			outline = step.Payload
			observation = prompt.OutlineUpdatedObservation
			emit(agent.Event{Type: agent.EventOutlineUpdated, Step: i + 1, Outline: outline})

		case parser.ActionToolCall:
			observation = dispatcher.InvokeRaw(ctx, step.Payload)
			emit(agent.Event{
				Type:        agent.EventTool,
				Step:        i + 1,
				ToolCall:    step.Payload,
				Observation: clip(observation, 1000),
			})

		case parser.ActionError:
			observation = step.Payload
			slog.Warn("Planner step produced no valid action", "step", i+1)
		}
	}

	slog.Warn("Planner reached max iterations")
	return outline, nil
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
