package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/telemetry"
)

// TelemetryHandler handles vehicle telemetry events
type TelemetryHandler struct {
	router telemetry.EventRouter
	logs   db.TelemetryCollection
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(router telemetry.EventRouter, logs db.TelemetryCollection) *TelemetryHandler {
	return &TelemetryHandler{router: router, logs: logs}
}

// Receive handles POST /telemetry. Ingestion succeeds whether or not a
// notification could be delivered.
func (h *TelemetryHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := telemetry.DecodeEvent(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateStruct(&ev); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := h.router.RouteTelemetry(r.Context(), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": "Telemetry received",
		"data":    outcome,
	})
}

// List handles GET /telemetry
func (h *TelemetryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.logs.FindTelemetryLogs(r.Context(), q.Get("deviceId"), parseLimit(q.Get("limit")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"count":   len(logs),
		"data":    logs,
	})
}
