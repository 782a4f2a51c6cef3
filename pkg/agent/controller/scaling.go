package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
)

const (
	defaultNumAgents   = 3
	defaultBaseTemp    = float32(0.6)
	synthesisTemp      = float32(0.2)
	synthesisFailedMsg = "Synthesis failed: No research data available."
)

// Scaling runs several researchers on the same question in parallel at
// increasing temperatures, then has a synthesis call merge their findings
// into one answer.
type Scaling struct {
	cfg       Config
	numAgents int
}

// NewScaling builds the parallel sampler. numAgents <= 0 falls back to the
// default of 3.
func NewScaling(cfg Config, numAgents int) *Scaling {
	if numAgents <= 0 {
		numAgents = defaultNumAgents
	}
	return &Scaling{cfg: cfg, numAgents: numAgents}
}

// Run fans out, gathers, and synthesizes. A sample that errors or panics is
// excluded from synthesis but does not fail the whole run.
func (s *Scaling) Run(ctx context.Context, question string, cb agent.ProgressFunc) *agent.ScalingResult {
	agent.Emit(cb, agent.Event{Type: agent.EventStatus, Status: "starting", Message: fmt.Sprintf("Launching %d parallel researchers", s.numAgents)})

	baseTemp := defaultBaseTemp
	if s.cfg.Temperature != nil {
		baseTemp = *s.cfg.Temperature
	}

	outcomes := make([]agent.SampleOutcome, s.numAgents)
	results := make([]*agent.Result, s.numAgents)

	var wg sync.WaitGroup
	for i := 0; i < s.numAgents; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Parallel researcher panicked", "agent", idx+1, "panic", r)
					outcomes[idx] = agent.SampleOutcome{Agent: idx + 1, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()

			temp := baseTemp + 0.2*float32(idx)
			cfg := s.cfg
			cfg.Temperature = &temp

			sampleCb := func(ev agent.Event) {
				if ev.Agent == "" {
					ev.Agent = fmt.Sprintf("researcher_%d", idx+1)
				}
				agent.Emit(cb, ev)
			}

			res := NewResearcher(cfg).Run(ctx, question, sampleCb)
			results[idx] = res
			outcomes[idx] = agent.SampleOutcome{
				Agent:       idx + 1,
				Answer:      res.Prediction,
				Report:      res.Report,
				Termination: res.Termination,
			}
		}(i)
	}
	wg.Wait()

	var runs []agent.Result
	var findings []prompt.ResearcherFinding
	var inputs []agent.SampleOutcome
	for i, res := range results {
		inputs = append(inputs, outcomes[i])
		if res == nil || outcomes[i].Error != "" {
			continue
		}
		runs = append(runs, *res)
		findings = append(findings, prompt.ResearcherFinding{
			Answer:      res.Prediction,
			Report:      res.Report,
			Termination: res.Termination,
		})
	}

	out := &agent.ScalingResult{
		Question:        question,
		ParallelRuns:    runs,
		SynthesisInputs: inputs,
	}

	if len(findings) == 0 {
		slog.Warn("All parallel researchers failed", "question", question)
		out.FinalAnswer = synthesisFailedMsg
		agent.Emit(cb, agent.Event{Type: agent.EventError, Error: synthesisFailedMsg})
		return out
	}

	agent.Emit(cb, agent.Event{Type: agent.EventStatus, Status: "synthesizing", Message: fmt.Sprintf("Synthesizing %d research results", len(findings))})

	out.FinalAnswer = s.synthesize(ctx, question, findings)
	agent.Emit(cb, agent.Event{Type: agent.EventComplete, Answer: out.FinalAnswer})
	return out
}

// synthesize runs the single merge call at a low temperature with no tools
// and no stop sequences. On failure it falls back to the first finding's
// answer so the caller still gets something usable.
func (s *Scaling) synthesize(ctx context.Context, question string, findings []prompt.ResearcherFinding) string {
	temp := synthesisTemp
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt.SynthesisSystem},
		{Role: llm.RoleUser, Content: prompt.SynthesisUser(question, findings)},
	}
	resp, err := s.cfg.Client.Complete(ctx, msgs, llm.Options{Temperature: &temp})
	if err != nil || resp.Failed || resp.Content == "" {
		slog.Error("Synthesis call failed, falling back to first answer", "error", err)
		return findings[0].Answer
	}
	return resp.Content
}
