package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and which backends the process runs on.
type HealthHandler struct {
	Shows     int
	LiveStore string // "redis" or "memory"
	Database  bool
	Events    bool
}

// Health is used by load balancers and monitoring to verify that the
// service is running.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":     "ok",
		"shows":      h.Shows,
		"live_store": h.LiveStore,
		"database":   h.Database,
		"events":     h.Events,
	})
}
