// Package api exposes the research runtime over HTTP: session management,
// turn submission, structured process queries, and live event streams via
// SSE and WebSocket.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webresearcher/webresearcher/pkg/session"
	"github.com/webresearcher/webresearcher/pkg/version"
)

// Server is the HTTP front of the session manager.
type Server struct {
	manager *session.Manager
	echo    *echo.Echo
	srv     *http.Server
}

// NewServer builds the server and registers all routes.
func NewServer(manager *session.Manager, allowedOrigins []string) *Server {
	e := echo.New()
	s := &Server{manager: manager, echo: e}

	e.Use(corsMiddleware(allowedOrigins))

	e.GET("/health", s.healthHandler)

	g := e.Group("/api")
	g.POST("/session", s.createSessionHandler)
	g.POST("/research", s.submitResearchHandler)
	g.GET("/session/:id", s.fetchSessionHandler)
	g.GET("/session/:id/turn/:index/process", s.turnProcessHandler)
	g.GET("/session/:id/task/:task_id/process", s.taskProcessHandler)
	g.GET("/session/:id/stream", s.streamHandler)
	g.GET("/session/:id/ws", s.wsHandler)
	g.GET("/history", s.historyHandler)

	return s
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.echo}
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": version.AppName,
		"version": version.GitCommit,
	})
}
