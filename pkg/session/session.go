// Package session implements multi-turn research sessions: per-turn task
// lifecycle, event recording with structured process extraction, condition
// variable fan-out for streaming consumers, and JSONL history persistence.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webresearcher/webresearcher/pkg/agent"
)

// Turn statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SessionActive is the status of a session that can accept new turns.
const SessionActive = "active"

func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ProcessRound is one round's plan and report, extracted from round events.
type ProcessRound struct {
	Round     int    `json:"round"`
	Plan      string `json:"plan"`
	Report    string `json:"report"`
	Timestamp string `json:"timestamp"`
}

// ProcessTool is one tool invocation, extracted from tool events.
type ProcessTool struct {
	Round       int    `json:"round"`
	Tool        string `json:"tool"`
	Observation string `json:"observation"`
	IsError     bool   `json:"is_error"`
	Timestamp   string `json:"timestamp"`
}

// Process is the structured view of a turn's research activity.
type Process struct {
	Rounds []ProcessRound `json:"rounds"`
	Tools  []ProcessTool  `json:"tools"`
}

// Turn is one question/answer exchange. All fields are guarded by the
// owning session's mutex.
type Turn struct {
	TaskID    string
	Question  string
	Answer    string
	Status    string
	CreatedAt time.Time
	Events    []agent.Event
	Result    any
	Error     string

	rounds    []ProcessRound
	toolCalls []ProcessTool
}

func (t *Turn) process() Process {
	p := Process{
		Rounds: make([]ProcessRound, len(t.rounds)),
		Tools:  make([]ProcessTool, len(t.toolCalls)),
	}
	copy(p.Rounds, t.rounds)
	copy(p.Tools, t.toolCalls)
	return p
}

// upsertRound updates an existing round entry or appends a new one, so a
// round's plan and report accrete as events arrive.
func (t *Turn) upsertRound(round int, plan, report, timestamp string) {
	for i := range t.rounds {
		if t.rounds[i].Round == round {
			if plan != "" {
				t.rounds[i].Plan = plan
			}
			if report != "" {
				t.rounds[i].Report = report
			}
			if timestamp != "" {
				t.rounds[i].Timestamp = timestamp
			}
			return
		}
	}
	t.rounds = append(t.rounds, ProcessRound{Round: round, Plan: plan, Report: report, Timestamp: timestamp})
}

func (t *Turn) snapshot(includeProcess bool) TurnSnapshot {
	snap := TurnSnapshot{
		TaskID:    t.TaskID,
		Question:  t.Question,
		Answer:    t.Answer,
		Status:    t.Status,
		CreatedAt: formatTime(t.CreatedAt),
		Events:    append([]agent.Event{}, t.Events...),
		Result:    t.Result,
		Error:     t.Error,
	}
	if includeProcess {
		p := t.process()
		snap.Process = &p
	}
	return snap
}

// TurnSnapshot is the serializable view of a turn.
type TurnSnapshot struct {
	TaskID    string        `json:"task_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Status    string        `json:"status"`
	CreatedAt string        `json:"created_at"`
	Events    []agent.Event `json:"events"`
	Result    any           `json:"result"`
	Error     string        `json:"error,omitempty"`
	Process   *Process      `json:"process,omitempty"`
}

// Detail is the full serializable view of a session.
type Detail struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Turns     []TurnSnapshot `json:"turns"`
}

// Summary is the list-view of a session.
type Summary struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	TurnCount     int    `json:"turn_count"`
	FirstQuestion string `json:"first_question"`
	LastAnswer    string `json:"last_answer"`
}

// Record is one JSONL history line: a full session snapshot taken when a
// turn finishes.
type Record struct {
	SessionID     string         `json:"session_id"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	Turns         []TurnSnapshot `json:"turns"`
	FirstQuestion string         `json:"first_question"`
	TurnCount     int            `json:"turn_count"`
}

// TurnProcess is the response shape of the per-turn process endpoints.
type TurnProcess struct {
	SessionID string  `json:"session_id"`
	TurnIndex int     `json:"turn_index"`
	TaskID    string  `json:"task_id"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Status    string  `json:"status"`
	Process   Process `json:"process"`
}

// State is one live (or reloaded) session.
type State struct {
	mu   sync.Mutex
	cond *sync.Cond

	ID           string
	AgentKind    string
	TTSNumAgents int
	MaxTurns     int
	Instruction  string
	Tools        []string

	status    string
	createdAt time.Time
	updatedAt time.Time
	turns     []*Turn
	current   *Turn
}

func newState(id string) *State {
	now := time.Now()
	s := &State{ID: id, status: SessionActive, createdAt: now, updatedAt: now}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AddTurn appends a new running turn and makes it current.
func (s *State) AddTurn(question string) *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn := &Turn{
		TaskID:    newTaskID(),
		Question:  question,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	s.turns = append(s.turns, turn)
	s.current = turn
	s.updatedAt = time.Now()
	s.cond.Broadcast()
	return turn
}

// AddEvent records one progress event on the current turn, extracts the
// structured process data, and wakes stream consumers. It is safe to use as
// an agent.ProgressFunc.
func (s *State) AddEvent(ev agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = formatTime(time.Now())
	}
	s.current.Events = append(s.current.Events, ev)

	switch ev.Type {
	case agent.EventRound:
		round := ev.Round
		if round == 0 {
			round = 1
		}
		s.current.upsertRound(round, ev.Plan, ev.Report, ev.Timestamp)
	case agent.EventTool, agent.EventToolError:
		round := ev.Round
		if round == 0 {
			round = 1
		}
		name := ev.ToolCall
		if name == "" {
			name = ev.Action
		}
		if name == "" {
			name = "unknown"
		}
		s.current.toolCalls = append(s.current.toolCalls, ProcessTool{
			Round:       round,
			Tool:        name,
			Observation: ev.Observation,
			IsError:     ev.Type == agent.EventToolError,
			Timestamp:   ev.Timestamp,
		})
	}

	s.updatedAt = time.Now()
	s.cond.Broadcast()
}

// FinishTurn completes the current turn. A non-empty errMsg marks it failed.
func (s *State) FinishTurn(answer string, result any, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.Answer = answer
	s.current.Result = result
	s.current.Error = errMsg
	if errMsg == "" {
		s.current.Status = StatusCompleted
	} else {
		s.current.Status = StatusFailed
	}
	s.updatedAt = time.Now()
	s.cond.Broadcast()
}

// HistoryContext renders the most recent completed turns (excluding the
// current one) as a conversation-history block for the next turn's
// instruction. Empty when there is nothing to carry over.
func (s *State) HistoryContext(maxTurns int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) <= 1 {
		return ""
	}
	var completed []*Turn
	for _, t := range s.turns[:len(s.turns)-1] {
		if t.Status == StatusCompleted && t.Answer != "" {
			completed = append(completed, t)
		}
	}
	if len(completed) == 0 {
		return ""
	}
	if maxTurns > 0 && len(completed) > maxTurns {
		completed = completed[len(completed)-maxTurns:]
	}

	var b strings.Builder
	b.WriteString("## Previous Conversation History\n")
	fmt.Fprintf(&b, "The following are the previous %d round(s) of conversation in this session.\n", len(completed))
	b.WriteString("You should use this information to understand the context and provide better answers for the current question.\n")
	b.WriteString("DO NOT repeat information from previous answers unless specifically asked.\n\n")
	for i, t := range completed {
		fmt.Fprintf(&b, "### Previous Round %d\n", i+1)
		b.WriteString("User Question: " + t.Question + "\n")
		b.WriteString("Your Answer: " + t.Answer + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Snapshot returns the full session detail. includeProcess controls whether
// each turn carries its structured process block.
func (s *State) Snapshot(includeProcess bool) Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Detail{
		SessionID: s.ID,
		Status:    s.status,
		CreatedAt: formatTime(s.createdAt),
		UpdatedAt: formatTime(s.updatedAt),
		Turns:     make([]TurnSnapshot, 0, len(s.turns)),
	}
	for _, t := range s.turns {
		d.Turns = append(d.Turns, t.snapshot(includeProcess))
	}
	return d
}

// Summary returns the list-view fields.
func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{
		SessionID: s.ID,
		Status:    s.status,
		CreatedAt: formatTime(s.createdAt),
		UpdatedAt: formatTime(s.updatedAt),
		TurnCount: len(s.turns),
	}
	if len(s.turns) > 0 {
		sum.FirstQuestion = s.turns[0].Question
		sum.LastAnswer = s.turns[len(s.turns)-1].Answer
	}
	return sum
}

// Record builds the JSONL persistence line for this session.
func (s *State) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{
		SessionID: s.ID,
		Status:    s.status,
		CreatedAt: formatTime(s.createdAt),
		UpdatedAt: formatTime(s.updatedAt),
		Turns:     make([]TurnSnapshot, 0, len(s.turns)),
		TurnCount: len(s.turns),
	}
	for _, t := range s.turns {
		rec.Turns = append(rec.Turns, t.snapshot(true))
	}
	if len(s.turns) > 0 {
		rec.FirstQuestion = s.turns[0].Question
	}
	return rec
}

// ProcessByIndex returns the structured process of the i-th turn.
func (s *State) ProcessByIndex(i int) (TurnProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.turns) {
		return TurnProcess{}, ErrTurnNotFound
	}
	return s.turnProcessLocked(i), nil
}

// ProcessByTaskID returns the structured process of the turn with the given
// task ID.
func (s *State) ProcessByTaskID(taskID string) (TurnProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.turns {
		if t.TaskID == taskID {
			return s.turnProcessLocked(i), nil
		}
	}
	return TurnProcess{}, ErrTaskNotFound
}

func (s *State) turnProcessLocked(i int) TurnProcess {
	t := s.turns[i]
	return TurnProcess{
		SessionID: s.ID,
		TurnIndex: i,
		TaskID:    t.TaskID,
		Question:  t.Question,
		Answer:    t.Answer,
		Status:    t.Status,
		Process:   t.process(),
	}
}

// StreamView is one consistent read of the current turn for an SSE loop.
type StreamView struct {
	HasCurrent bool
	TurnIndex  int
	Events     []agent.Event
	Finished   bool
	Status     string
	Answer     string
	LastReport string
	Error      string
}

// StreamSince returns the current turn's events from the given offset plus
// its completion state. HasCurrent is false for reloaded historical
// sessions, which have no live turn to stream.
func (s *State) StreamSince(sent int) StreamView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StreamView{}
	}
	view := StreamView{
		HasCurrent: true,
		TurnIndex:  len(s.turns) - 1,
		Status:     s.current.Status,
		Answer:     s.current.Answer,
		Error:      s.current.Error,
	}
	if sent < len(s.current.Events) {
		view.Events = append([]agent.Event{}, s.current.Events[sent:]...)
	}
	if s.current.Status == StatusCompleted || s.current.Status == StatusFailed {
		view.Finished = true
		for i := len(s.current.Events) - 1; i >= 0; i-- {
			ev := s.current.Events[i]
			if ev.Type == agent.EventRound && ev.Report != "" {
				view.LastReport = ev.Report
				break
			}
		}
	}
	return view
}

// Wait blocks until the next state change broadcast.
func (s *State) Wait() {
	s.mu.Lock()
	s.cond.Wait()
	s.mu.Unlock()
}

// Notify wakes all waiters without changing state. Stream handlers use it
// to unblock their read loop when the client disconnects.
func (s *State) Notify() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}
