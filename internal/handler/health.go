package handler

import (
	"net/http"

	"github.com/voicecal/voice-scheduler/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store *store.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(client *store.Client) *HealthHandler {
	return &HealthHandler{
		store: client,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	// Check NATS connection
	if h.store == nil || !h.store.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
