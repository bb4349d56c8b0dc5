package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ukydev/fleet-relay/internal/db"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler reports liveness and store reachability
type HealthHandler struct {
	store   db.Pinger
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store db.Pinger) *HealthHandler {
	return &HealthHandler{store: store, started: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	body := Envelope{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	}
	if err := h.store.Ping(ctx); err != nil {
		body["success"] = false
		body["message"] = "Server is running but the database is unreachable"
		body["store"] = "disconnected"
		body["error"] = CodeStore
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	body["success"] = true
	body["message"] = "Server is running"
	body["store"] = "connected"
	writeJSON(w, http.StatusOK, body)
}
