package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/webresearcher/webresearcher/pkg/agent"
	"github.com/webresearcher/webresearcher/pkg/session"
)

// streamEvent flattens an event into the wire shape, adding the turn index
// so the client can attribute frames in multi-turn sessions.
func streamEvent(ev agent.Event, turnIndex int) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["turn_index"] = turnIndex
	return json.Marshal(m)
}

func streamFinished(view session.StreamView) ([]byte, error) {
	frame := map[string]any{
		"type":       "turn_finished",
		"turn_index": view.TurnIndex,
		"status":     view.Status,
		"answer":     view.Answer,
		"report":     view.LastReport,
	}
	if view.Error != "" {
		frame["error"] = view.Error
	}
	return json.Marshal(frame)
}

// streamHandler handles GET /api/session/:id/stream, pushing turn events as
// server-sent events until the current turn finishes.
func (s *Server) streamHandler(c *echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return mapSessionError(err)
	}

	res := c.Response()
	res.Header().Set("Content-Type", "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(res)
	writeFrame := func(data []byte) error {
		if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if !state.StreamSince(0).HasCurrent {
		data, _ := json.Marshal(map[string]string{
			"type":    "info",
			"message": "Historical session, no live events",
		})
		return writeFrame(data)
	}

	// Wake the Wait loop when the client goes away so the handler can exit.
	ctx := c.Request().Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			state.Notify()
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	sent := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		view := state.StreamSince(sent)
		for _, ev := range view.Events {
			data, err := streamEvent(ev, view.TurnIndex)
			if err != nil {
				continue
			}
			if err := writeFrame(data); err != nil {
				return nil
			}
			sent++
		}
		if view.Finished {
			data, err := streamFinished(view)
			if err != nil {
				return nil
			}
			writeFrame(data)
			return nil
		}
		state.Wait()
	}
}
