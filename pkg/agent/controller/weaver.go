package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/memory"
	"github.com/webresearcher/webresearcher/pkg/tools"
)

// Weaver orchestrates the dual-agent outline-then-write workflow: the
// planner gathers evidence into a shared memory bank and produces an
// outline, then the writer turns outline plus evidence into the report.
type Weaver struct {
	cfg  Config
	bank *memory.Bank
}

// NewWeaver builds the orchestrator. The registry inside cfg must hold the
// base research tools; Weaver wraps them with memory-bank integration for
// the planner and gives the writer only the retrieve tool.
func NewWeaver(cfg Config) *Weaver {
	bank := memory.NewBank()

	plannerReg := tools.NewRegistry()
	for _, name := range cfg.Registry.Names() {
		base, _ := cfg.Registry.Get(name)
		switch name {
		case "search":
			plannerReg.Register(memory.WrapSearch(bank, base))
		case "google_scholar":
			plannerReg.Register(memory.WrapScholar(bank, base))
		case "visit":
			plannerReg.Register(memory.WrapVisit(bank, base))
		case tools.PythonToolName:
			plannerReg.Register(memory.WrapPython(bank, base))
		case "parse_file":
			plannerReg.Register(memory.WrapFile(bank, base))
		default:
			plannerReg.Register(base)
		}
	}
	cfg.Registry = plannerReg
	return &Weaver{cfg: cfg, bank: bank}
}

// Bank exposes the shared memory bank, mainly for tests.
func (w *Weaver) Bank() *memory.Bank { return w.bank }

// Run executes both phases under the per-phase timeout and returns the
// outline, report and bank statistics. Phase failures are reported in the
// result's Error field rather than as a Go error so callers still get the
// partial outcome.
func (w *Weaver) Run(ctx context.Context, question string, cb agent.ProgressFunc) *agent.WeaverResult {
	start := time.Now()

	agent.Emit(cb, agent.Event{Type: agent.EventStatus, Status: "starting", Phase: "planner"})

	plannerCtx, cancelPlanner := context.WithTimeout(ctx, w.cfg.timeout())
	outline, err := NewPlanner(w.cfg).Run(plannerCtx, question, cb)
	cancelPlanner()
	if err != nil {
		slog.Error("Planner phase failed", "error", err)
		agent.Emit(cb, agent.Event{Type: agent.EventError, Phase: "planner", Error: err.Error()})
		return &agent.WeaverResult{
			Question: question,
			Error:    fmt.Sprintf("Planner phase error: %v", err),
		}
	}
	agent.Emit(cb, agent.Event{
		Type:           agent.EventPhaseComplete,
		Phase:          "planner",
		Outline:        outline,
		MemoryBankSize: w.bank.Size(),
	})

	agent.Emit(cb, agent.Event{Type: agent.EventStatus, Status: "starting", Phase: "writer"})

	writerCfg := w.cfg
	writerCfg.Registry = tools.NewRegistry(memory.NewRetrieveTool(w.bank))
	writerCtx, cancelWriter := context.WithTimeout(ctx, w.cfg.timeout())
	report, err := NewWriter(writerCfg).Run(writerCtx, question, outline, cb)
	cancelWriter()
	if err != nil {
		slog.Error("Writer phase failed", "error", err)
		agent.Emit(cb, agent.Event{Type: agent.EventError, Phase: "writer", Error: err.Error()})
		return &agent.WeaverResult{
			Question: question,
			Error:    fmt.Sprintf("Writer phase error: %v", err),
		}
	}
	agent.Emit(cb, agent.Event{Type: agent.EventPhaseComplete, Phase: "writer", Report: report})

	result := &agent.WeaverResult{
		Question:         question,
		FinalOutline:     outline,
		FinalReport:      report,
		MemoryBankSize:   w.bank.Size(),
		TotalTimeSeconds: time.Since(start).Seconds(),
	}
	agent.Emit(cb, agent.Event{Type: agent.EventComplete, Report: result.FinalReport, Outline: result.FinalOutline, MemoryBankSize: result.MemoryBankSize})
	return result
}
