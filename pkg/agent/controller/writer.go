package controller

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/parser"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
	"github.com/webresearcher/webresearcher/pkg/tools"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// maxIdleBeforeWriteHint bounds how many consecutive steps the writer may
// spend retrieving before it is told to write.
const maxIdleBeforeWriteHint = 6

// Writer drafts the report section by section from the planner's outline,
// pulling evidence out of the memory bank through its retrieve tool.
type Writer struct {
	cfg Config
}

func NewWriter(cfg Config) *Writer {
	return &Writer{cfg: cfg}
}

// Run iterates until the model terminates or the step budget runs out, and
// returns the accumulated report.
func (w *Writer) Run(ctx context.Context, question, finalOutline string, cb agent.ProgressFunc) (string, error) {
	emit := func(ev agent.Event) {
		ev.Agent = "writer"
		agent.Emit(cb, ev)
	}

	system := prompt.WriterSystem(prompt.Today(), w.cfg.Instruction)
	dispatcher := tools.NewDispatcher(w.cfg.Registry)

	report := ""
	observation := prompt.InitialWriterObservation
	seenRetrieves := make(map[string]*cachedRetrieve)
	idleSteps := 0
	maxSteps := w.cfg.maxCalls()

	for i := 0; i < maxSteps; i++ {
		contextStr := prompt.WriterContext(question, finalOutline, report, observation)
		if i == maxSteps-1 {
			contextStr += prompt.WriterFinalStep
		}
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: contextStr},
		}

		resp, err := w.cfg.Client.Complete(ctx, messages, llm.Options{
			Stop:            []string{ObservationStart},
			FailureSentinel: "Error: LLM server failed after all retries.",
		})
		if err != nil {
			return report, err
		}
		if resp.Reasoning != "" {
			emit(agent.Event{Type: agent.EventThinking, Step: i + 1, Content: resp.Reasoning})
		}

		step := parser.ParseWriterStep(resp.Content)
		emit(agent.Event{
			Type:       agent.EventStep,
			Step:       i + 1,
			Plan:       step.Plan,
			ActionType: string(step.Kind),
			Reasoning:  resp.Reasoning,
		})

		switch step.Kind {
		case parser.ActionTerminate:
			slog.Debug("Writer finished, terminating")
			return report, nil

		case parser.ActionWrite:
			report += "\n\n" + step.Payload
			observation = "Section written successfully:\n" + step.Payload + "\n"
			idleSteps = 0
			emit(agent.Event{Type: agent.EventSectionWritten, Step: i + 1, Content: step.Payload})

		case parser.ActionToolCall:
			key := retrieveKey(step.Payload)
			if key != "" {
				if cached, seen := seenRetrieves[key]; seen {
					cached.repeats++
					slog.Debug("Serving repeated retrieve from cache", "step", i+1, "repeats", cached.repeats)
					observation = "Evidence already retrieved:\n\n" + cached.content + "\n\n" +
						"You MUST now proceed to <write> the section."
					idleSteps++
					break
				}
			}
			observation = dispatcher.InvokeRaw(ctx, step.Payload)
			if key != "" {
				seenRetrieves[key] = &cachedRetrieve{content: observation}
			}
			idleSteps++
			emit(agent.Event{
				Type:        agent.EventTool,
				Step:        i + 1,
				ToolCall:    step.Payload,
				Observation: clip(observation, 1000),
			})

		case parser.ActionError:
			observation = step.Payload
			idleSteps++
			slog.Warn("Writer step produced no valid action", "step", i+1)
		}

		if idleSteps >= maxIdleBeforeWriteHint {
			observation += prompt.WriterIdleNudge
		}
	}

	slog.Warn("Writer reached max iterations")
	return report, nil
}

// cachedRetrieve is a retrieve result served on repeats, with a counter of
// how often the model asked again.
type cachedRetrieve struct {
	content string
	repeats int
}

// retrieveKey canonicalizes a retrieve call's arguments so duplicate
// retrievals can be served from memory. Non-retrieve or unparsable calls
// yield an empty key.
func retrieveKey(block string) string {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json5.Unmarshal([]byte(block), &call); err != nil || call.Name != "retrieve" {
		return ""
	}
	data, err := json.Marshal(call.Arguments)
	if err != nil {
		return ""
	}
	return string(data)
}
