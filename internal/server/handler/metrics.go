package handler

import (
	"net/http"

	"github.com/SandroAugusto/school-of-solana/internal/infra"
)

// MetricsHandler exposes the process counters.
type MetricsHandler struct {
	metrics *infra.Metrics
}

// NewMetricsHandler creates a MetricsHandler over m.
func NewMetricsHandler(m *infra.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// GetMetrics returns a point-in-time snapshot.
// GET /api/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
