package api

import (
	"net/http"
)

// StatsProvider exposes the service's runtime settings and counters.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

type statsResponse struct {
	Service   map[string]interface{} `json:"service"`
	Timestamp string                 `json:"timestamp"`
}

// HandleStats reports the service stats. Unlike /api/stats, which describes
// the training data, this reflects the running process.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{Service: h.provider.GetStats(), Timestamp: timestamp()})
}
