package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests      atomic.Int64
	clientErrors  atomic.Int64
	serverErrors  atomic.Int64
	ingested      atomic.Int64
	eventsSent    atomic.Int64
	eventsDropped atomic.Int64
	streams       atomic.Int64
}

// RecordStatus records a response status code.
func (m *Metrics) RecordStatus(code int) {
	m.requests.Add(1)
	switch {
	case code >= 500:
		m.serverErrors.Add(1)
	case code >= 400:
		m.clientErrors.Add(1)
	}
}

// RecordIngest records an exchange logged through ingestion.
func (m *Metrics) RecordIngest() {
	m.ingested.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:      m.requests.Load(),
		ClientErrors:  m.clientErrors.Load(),
		ServerErrors:  m.serverErrors.Load(),
		Ingested:      m.ingested.Load(),
		EventsSent:    m.eventsSent.Load(),
		EventsDropped: m.eventsDropped.Load(),
		Streams:       m.streams.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests      int64 `json:"requests"`
	ClientErrors  int64 `json:"client_errors"`
	ServerErrors  int64 `json:"server_errors"`
	Ingested      int64 `json:"ingested"`
	EventsSent    int64 `json:"events_sent"`
	EventsDropped int64 `json:"events_dropped"`
	Streams       int64 `json:"streams"`
}

// countRequests records the status of every response.
func (g *Gateway) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.RecordStatus(status)
	})
}
