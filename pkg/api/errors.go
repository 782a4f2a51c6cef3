package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webresearcher/webresearcher/pkg/session"
)

// mapSessionError maps session-layer errors to HTTP error responses.
func mapSessionError(err error) *echo.HTTPError {
	if errors.Is(err, session.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}
	if errors.Is(err, session.ErrTurnNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Turn not found")
	}
	if errors.Is(err, session.ErrTaskNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	}

	// Unexpected error
	slog.Error("Unexpected session error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
