package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webresearcher/webresearcher/pkg/agent"
)

// Sentinel errors mapped to HTTP 404 by the API layer.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnNotFound    = errors.New("turn not found")
	ErrTaskNotFound    = errors.New("task not found")
)

// Agent kinds selectable per session.
const (
	AgentWebResearcher = "web_researcher"
	AgentWebWeaver     = "webweaver"
	AgentReact         = "react"
	AgentTTS           = "tts"
)

// RunRequest describes one turn's agent invocation.
type RunRequest struct {
	Kind        string
	Instruction string
	Tools       []string
	NumAgents   int
	Question    string
}

// RunOutcome is what a finished agent run contributes to the turn.
type RunOutcome struct {
	Answer      string
	Report      string
	Termination string
	Result      any
}

// Runner executes one agent run. The manager is agnostic to which loop
// implements it; wiring happens in the entry point.
type Runner func(ctx context.Context, req RunRequest, cb agent.ProgressFunc) (RunOutcome, error)

// CreateOptions parameterizes a new session. Zero values get defaults.
type CreateOptions struct {
	Agent        string
	TTSNumAgents int
	MaxTurns     int
	Instruction  string
	Tools        []string
}

// Manager owns the live sessions and the append-only history file.
type Manager struct {
	historyPath string
	runner      Runner

	mu       sync.Mutex
	sessions map[string]*State

	historyMu sync.Mutex
}

// NewManager builds a manager persisting to historyPath.
func NewManager(historyPath string, runner Runner) *Manager {
	return &Manager{
		historyPath: historyPath,
		runner:      runner,
		sessions:    make(map[string]*State),
	}
}

// CreateSession registers a new active session.
func (m *Manager) CreateSession(opts CreateOptions) *State {
	s := newState(strings.ReplaceAll(uuid.NewString(), "-", ""))
	s.AgentKind = opts.Agent
	if s.AgentKind == "" {
		s.AgentKind = AgentWebResearcher
	}
	s.TTSNumAgents = opts.TTSNumAgents
	if s.TTSNumAgents == 0 {
		s.TTSNumAgents = 3
	}
	s.MaxTurns = opts.MaxTurns
	if s.MaxTurns == 0 {
		s.MaxTurns = 5
	}
	s.Instruction = opts.Instruction
	s.Tools = opts.Tools

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	slog.Info("Session created", "session_id", s.ID, "agent", s.AgentKind)
	return s
}

// Get returns a live session, falling back to a read-only reconstruction
// from the history file. Reconstructed sessions are not cached.
func (m *Manager) Get(sessionID string) (*State, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	if s := m.loadFromHistory(sessionID); s != nil {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// StartResearch schedules one turn on the session. The turn runs in its own
// goroutine; progress is observable through the session's event stream.
func (m *Manager) StartResearch(s *State, question string) {
	go m.runTurn(s, question)
}

func (m *Manager) runTurn(s *State, question string) {
	s.AddTurn(question)

	instruction := s.Instruction
	if history := s.HistoryContext(s.MaxTurns); history != "" {
		instruction = strings.TrimSpace(instruction + "\n\n" + history)
	}

	slog.Info("Starting research turn", "session_id", s.ID, "agent", s.AgentKind)

	outcome, err := m.runner(context.Background(), RunRequest{
		Kind:        s.AgentKind,
		Instruction: instruction,
		Tools:       s.Tools,
		NumAgents:   s.TTSNumAgents,
		Question:    question,
	}, s.AddEvent)

	if err != nil {
		slog.Error("Research turn failed", "session_id", s.ID, "error", err)
		s.AddEvent(agent.Event{Type: agent.EventError, Message: err.Error()})
		s.FinishTurn("", nil, err.Error())
	} else {
		s.AddEvent(agent.Event{
			Type:        agent.EventSummary,
			Answer:      outcome.Answer,
			Report:      outcome.Report,
			Termination: outcome.Termination,
		})
		s.FinishTurn(outcome.Answer, outcome.Result, "")
		slog.Info("Research turn completed", "session_id", s.ID, "termination", outcome.Termination)
	}

	if err := m.persist(s); err != nil {
		slog.Error("Failed to persist session", "session_id", s.ID, "error", err)
	}
}

func (m *Manager) persist(s *State) error {
	if err := os.MkdirAll(filepath.Dir(m.historyPath), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.Marshal(s.Record())
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}

	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	f, err := os.OpenFile(m.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

func (m *Manager) loadFromHistory(sessionID string) *State {
	records := m.loadRecords()
	// The newest snapshot of the session wins.
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].SessionID == sessionID {
			return stateFromRecord(records[i])
		}
	}
	return nil
}

func stateFromRecord(rec Record) *State {
	s := newState(rec.SessionID)
	s.status = rec.Status
	if t, err := time.Parse(time.RFC3339Nano, rec.CreatedAt); err == nil {
		s.createdAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, rec.UpdatedAt); err == nil {
		s.updatedAt = t
	}
	for _, td := range rec.Turns {
		turn := &Turn{
			TaskID:   td.TaskID,
			Question: td.Question,
			Answer:   td.Answer,
			Status:   td.Status,
			Events:   td.Events,
			Result:   td.Result,
			Error:    td.Error,
		}
		if turn.TaskID == "" {
			turn.TaskID = newTaskID()
		}
		if turn.Status == "" {
			turn.Status = StatusCompleted
		}
		if t, err := time.Parse(time.RFC3339Nano, td.CreatedAt); err == nil {
			turn.CreatedAt = t
		}
		if td.Process != nil {
			turn.rounds = td.Process.Rounds
			turn.toolCalls = td.Process.Tools
		}
		s.turns = append(s.turns, turn)
	}
	// Historical sessions have no running turn to stream.
	s.current = nil
	return s
}

// ReadHistory merges persisted and in-memory sessions, newest first,
// deduplicated by session ID with the newest snapshot winning.
func (m *Manager) ReadHistory(limit int) []Record {
	records := m.loadRecords()

	m.mu.Lock()
	for _, s := range m.sessions {
		records = append(records, s.Record())
	}
	m.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		return parseUpdatedAt(records[i]).After(parseUpdatedAt(records[j]))
	})

	seen := make(map[string]bool)
	unique := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.SessionID == "" || seen[rec.SessionID] {
			continue
		}
		seen[rec.SessionID] = true
		unique = append(unique, rec)
	}

	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func parseUpdatedAt(rec Record) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, rec.UpdatedAt)
	return t
}

func (m *Manager) loadRecords() []Record {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()

	f, err := os.Open(m.historyPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			slog.Warn("Skip malformed history line", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}
