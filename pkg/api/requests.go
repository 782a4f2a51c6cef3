package api

import (
	"fmt"
)

// CreateSessionRequest is the body of POST /api/session.
type CreateSessionRequest struct {
	Agent        string   `json:"agent"`
	TTSNumAgents int      `json:"tts_num_agents"`
	MaxTurns     int      `json:"max_turns"`
	Instruction  string   `json:"instruction"`
	Tools        []string `json:"tools"`
}

var validAgents = map[string]bool{
	"web_researcher": true,
	"webweaver":      true,
	"react":          true,
	"tts":            true,
}

// normalize applies defaults and validates ranges.
func (r *CreateSessionRequest) normalize() error {
	if r.Agent == "" {
		r.Agent = "web_researcher"
	}
	if !validAgents[r.Agent] {
		return fmt.Errorf("invalid agent: must be web_researcher, webweaver, react, or tts")
	}
	if r.TTSNumAgents == 0 {
		r.TTSNumAgents = 3
	}
	if r.TTSNumAgents < 2 || r.TTSNumAgents > 8 {
		return fmt.Errorf("tts_num_agents must be between 2 and 8")
	}
	if r.MaxTurns == 0 {
		r.MaxTurns = 5
	}
	if r.MaxTurns < 1 || r.MaxTurns > 20 {
		return fmt.Errorf("max_turns must be between 1 and 20")
	}
	if len(r.Instruction) > 2000 {
		return fmt.Errorf("instruction exceeds maximum length of 2000 characters")
	}
	return nil
}

// ResearchRequest is the body of POST /api/research.
type ResearchRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (r *ResearchRequest) validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.Question == "" {
		return fmt.Errorf("question is required")
	}
	if len(r.Question) > 4000 {
		return fmt.Errorf("question exceeds maximum length of 4000 characters")
	}
	return nil
}
