// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/temporalmem/temporalmem/pkg/api/response"
	"github.com/temporalmem/temporalmem/pkg/memory"
)

// StatusReporter exposes the engine state the probes need.
type StatusReporter interface {
	Started() bool
	Status() memory.EngineStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	engine StatusReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(engine StatusReporter) *HealthHandler {
	return &HealthHandler{
		engine: engine,
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine.Started() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
	} else {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
	}
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.Status())
}
