package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/qaindex/internal/cron"
	"github.com/flemzord/qaindex/internal/qaindex"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   time.Duration    `json:"uptime_seconds"`
	Metrics  MetricsSnapshot  `json:"metrics"`
	Location string           `json:"location"`
	Index    qaindex.Metadata `json:"index"`
	Jobs     []cron.JobStatus `json:"jobs"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := g.store.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second),
			Metrics:  g.metrics.Snapshot(),
			Location: g.store.Location(),
			Index:    stats.Metadata,
			Jobs:     g.jobStatus(),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
