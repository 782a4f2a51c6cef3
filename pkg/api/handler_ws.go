package api

import (
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler handles GET /api/session/:id/ws. It upgrades to WebSocket and
// mirrors the SSE stream, writing each event as a JSON text frame.
func (s *Server) wsHandler(c *echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return mapSessionError(err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin checks happen in the CORS middleware; the upgrade accepts
		// whatever made it through.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request().Context()
	write := func(data []byte) error {
		return conn.Write(ctx, websocket.MessageText, data)
	}

	if !state.StreamSince(0).HasCurrent {
		data, _ := json.Marshal(map[string]string{
			"type":    "info",
			"message": "Historical session, no live events",
		})
		write(data)
		return nil
	}

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
			if err := write(data); err != nil {
				return nil
			}
			sent++
		}
		if view.Finished {
			data, err := streamFinished(view)
			if err != nil {
				return nil
			}
			write(data)
			return nil
		}
		state.Wait()
	}
}
