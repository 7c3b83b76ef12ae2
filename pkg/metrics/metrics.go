package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry so tests can
// create as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	WhalesDetected  prometheus.Counter
	WhalesPersisted prometheus.Counter
	PersistErrors   prometheus.Counter
	DispatchErrors  prometheus.Counter
	PollErrors      prometheus.Counter
	CursorBlock     prometheus.Gauge
	BatchTransfers  prometheus.Histogram

	AnalysisCacheHits    prometheus.Counter
	AnalysisCacheMisses  prometheus.Counter
	AnalysisCacheEntries prometheus.Gauge
	AnalysisDuration     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		WhalesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_events_detected_total",
			Help: "Transfers at or above the whale threshold",
		}),
		WhalesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_events_persisted_total",
			Help: "Whale events newly written to the store",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_persist_errors_total",
			Help: "Failed whale event upserts",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_dispatch_errors_total",
			Help: "Failed alert dispatches",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whale_poll_errors_total",
			Help: "Poll cycles that ended in backoff",
		}),
		CursorBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whale_cursor_block",
			Help: "Last fully processed block",
		}),
		BatchTransfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whale_batch_transfers",
			Help:    "Transfers per processed block range",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		AnalysisCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_cache_hits_total",
			Help: "Wallet analyses served from cache",
		}),
		AnalysisCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_cache_misses_total",
			Help: "Wallet analyses computed fresh",
		}),
		AnalysisCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_cache_entries",
			Help: "Entries currently held by the analysis cache",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Wall time of a fresh wallet analysis",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.WhalesDetected, m.WhalesPersisted, m.PersistErrors, m.DispatchErrors,
		m.PollErrors, m.CursorBlock, m.BatchTransfers,
		m.AnalysisCacheHits, m.AnalysisCacheMisses, m.AnalysisCacheEntries, m.AnalysisDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
