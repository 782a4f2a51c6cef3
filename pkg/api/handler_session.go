package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/webresearcher/webresearcher/pkg/session"
)

// createSessionHandler handles POST /api/session.
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.normalize(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state := s.manager.CreateSession(session.CreateOptions{
		Agent:        req.Agent,
		TTSNumAgents: req.TTSNumAgents,
		MaxTurns:     req.MaxTurns,
		Instruction:  req.Instruction,
		Tools:        req.Tools,
	})
	return c.JSON(http.StatusOK, state.Summary())
}

// submitResearchHandler handles POST /api/research.
func (s *Server) submitResearchHandler(c *echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state, err := s.manager.Get(req.SessionID)
	if err != nil {
		return mapSessionError(err)
	}

	s.manager.StartResearch(state, req.Question)
	return c.JSON(http.StatusOK, map[string]string{
		"session_id": state.ID,
		"status":     "running",
	})
}

// fetchSessionHandler handles GET /api/session/:id.
func (s *Server) fetchSessionHandler(c *echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return mapSessionError(err)
	}
	return c.JSON(http.StatusOK, state.Snapshot(true))
}

// turnProcessHandler handles GET /api/session/:id/turn/:index/process.
func (s *Server) turnProcessHandler(c *echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return mapSessionError(err)
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid turn index")
	}
	proc, err := state.ProcessByIndex(index)
	if err != nil {
		return mapSessionError(err)
	}
	return c.JSON(http.StatusOK, proc)
}

// taskProcessHandler handles GET /api/session/:id/task/:task_id/process.
func (s *Server) taskProcessHandler(c *echo.Context) error {
	state, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return mapSessionError(err)
	}
	proc, err := state.ProcessByTaskID(c.Param("task_id"))
	if err != nil {
		return mapSessionError(err)
	}
	return c.JSON(http.StatusOK, proc)
}

// historyHandler handles GET /api/history.
func (s *Server) historyHandler(c *echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"items": s.manager.ReadHistory(limit),
	})
}
