package qaindex

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the store's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Commits          *prometheus.CounterVec
	CommitFailures   *prometheus.CounterVec
	CommitDuration   prometheus.Histogram
	HashCollisions   prometheus.Counter
	AnswersDiscarded prometheus.Counter
	IndexRebuilds    prometheus.Counter
	Entries          prometheus.Gauge
	StoredAnswers    prometheus.Gauge
	CompressionRatio prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qaindex_commits_total",
			Help: "Committed mutations by operation",
		}, []string{"op"}),
		CommitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qaindex_commit_failures_total",
			Help: "Rejected or failed mutations by operation and error kind",
		}, []string{"op", "kind"}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "qaindex_commit_duration_seconds",
			Help:    "Time from load to atomic replace of the snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		HashCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "qaindex_hash_collisions_total",
			Help: "Appends whose question hash replaced another entry's reference",
		}),
		AnswersDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "qaindex_answers_discarded_total",
			Help: "Answers whose text was dropped by the retention threshold",
		}),
		IndexRebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "qaindex_index_rebuilds_total",
			Help: "Snapshots loaded with inconsistent indices that were rebuilt",
		}),
		Entries: f.NewGauge(prometheus.GaugeOpts{
			Name: "qaindex_entries",
			Help: "Entries in the active store after the last commit",
		}),
		StoredAnswers: f.NewGauge(prometheus.GaugeOpts{
			Name: "qaindex_stored_answers",
			Help: "Entries with answer text after the last commit",
		}),
		CompressionRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "qaindex_compression_ratio",
			Help: "Stored answers divided by entries after the last commit",
		}),
	}
}

func (m *Metrics) observeCommit(op Op, d time.Duration, meta Metadata) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(string(op)).Inc()
	m.CommitDuration.Observe(d.Seconds())
	m.Entries.Set(float64(meta.TotalQAPairs))
	m.StoredAnswers.Set(float64(meta.StoredAnswers))
	m.CompressionRatio.Set(meta.CompressionRatio)
}

func (m *Metrics) observeFailure(op Op, err error) {
	if m == nil {
		return
	}
	m.CommitFailures.WithLabelValues(string(op), KindOf(err).String()).Inc()
}

func (m *Metrics) observeWarning(w Warning) {
	if m == nil {
		return
	}
	switch w.Kind {
	case WarningHashCollision:
		m.HashCollisions.Inc()
	case WarningIndexRebuilt:
		m.IndexRebuilds.Inc()
	}
}

func (m *Metrics) observeDiscard() {
	if m == nil {
		return
	}
	m.AnswersDiscarded.Inc()
}
