package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	lastSeq func() uint64
}

// NewHealthHandler creates a HealthHandler. lastSeq may be nil.
func NewHealthHandler(lastSeq func() uint64) *HealthHandler {
	return &HealthHandler{lastSeq: lastSeq}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.lastSeq != nil {
		body["last_seq"] = h.lastSeq()
	}
	writeJSON(w, http.StatusOK, body)
}
