// Package agent holds the shared types flowing between the agent loops, the
// session layer, and the API: progress events and result bundles.
package agent

import (
	"time"

	"github.com/webresearcher/webresearcher/pkg/llm"
)

// Event types emitted by the loops. The session layer records every event on
// the active turn and forwards it to stream subscribers.
const (
	EventThinking       = "thinking"
	EventRound          = "round"
	EventTool           = "tool"
	EventToolError      = "tool_error"
	EventFinal          = "final"
	EventStatus         = "status"
	EventSummary        = "summary"
	EventError          = "error"
	EventStep           = "step"
	EventOutlineUpdated = "outline_updated"
	EventSectionWritten = "section_written"
	EventPhaseComplete  = "phase_complete"
	EventComplete       = "complete"
)

// Event is one progress notification. Fields not relevant to the event type
// stay zero and are omitted from JSON.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	Agent     string `json:"agent,omitempty"`

	Round int `json:"round,omitempty"`
	Step  int `json:"step,omitempty"`

	Plan        string `json:"plan,omitempty"`
	Report      string `json:"report,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionType  string `json:"action_type,omitempty"`
	Answer      string `json:"answer,omitempty"`
	Terminate   bool   `json:"terminate,omitempty"`
	Termination string `json:"termination,omitempty"`
	Reasoning   string `json:"reasoning_content,omitempty"`
	Content     string `json:"content,omitempty"`

	ToolCall    string `json:"tool_call,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolArgs    string `json:"tool_args,omitempty"`
	Observation string `json:"observation,omitempty"`

	Status         string `json:"status,omitempty"`
	Phase          string `json:"phase,omitempty"`
	Outline        string `json:"outline,omitempty"`
	MemoryBankSize int    `json:"memory_bank_size,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ProgressFunc receives events during a loop run. Implementations must be
// fast; slow consumers should buffer on their side.
type ProgressFunc func(Event)

// Emit stamps and delivers an event through cb, tolerating a nil callback.
func Emit(cb ProgressFunc, ev Event) {
	if cb == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	cb(ev)
}

// Result is the bundle every iterative loop returns. Prediction is always
// non-empty.
type Result struct {
	Question    string        `json:"question"`
	Prediction  string        `json:"prediction"`
	Report      string        `json:"report,omitempty"`
	Termination string        `json:"termination"`
	Trajectory  []llm.Message `json:"trajectory,omitempty"`
}

// WeaverResult is the planner/writer bundle.
type WeaverResult struct {
	Question         string  `json:"question"`
	FinalOutline     string  `json:"final_outline"`
	FinalReport      string  `json:"final_report"`
	MemoryBankSize   int     `json:"memory_bank_size"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	Error            string  `json:"error,omitempty"`
}

// SampleOutcome records one parallel sample's fate for the synthesis report.
type SampleOutcome struct {
	Agent       int    `json:"agent"`
	Answer      string `json:"answer,omitempty"`
	Report      string `json:"report,omitempty"`
	Termination string `json:"termination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ScalingResult is the parallel-sample + synthesizer bundle.
type ScalingResult struct {
	Question        string          `json:"question"`
	FinalAnswer     string          `json:"final_synthesized_answer"`
	ParallelRuns    []Result        `json:"parallel_runs"`
	SynthesisInputs []SampleOutcome `json:"synthesis_inputs"`
}
