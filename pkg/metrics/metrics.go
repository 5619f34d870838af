// Package metrics defines the Prometheus metric collectors grop exposes for
// the index builder and search service, and an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the daemon.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	BuildsTotal          *prometheus.CounterVec
	BuildDuration        prometheus.Histogram
	BytesScannedTotal     prometheus.Counter
	ChunksWrittenTotal    prometheus.Counter
	TrigramsWrittenTotal  prometheus.Counter
	IndexBytesWritten     prometheus.Counter
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	CandidateChunksCount prometheus.Histogram
	ChunksVerifiedCount  prometheus.Histogram
	MatchesReturnedCount prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grop_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grop_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds by method and path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grop_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grop_builds_total",
				Help: "Total index build operations by outcome (success, error).",
			},
			[]string{"outcome"},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grop_build_duration_seconds",
				Help:    "Time to build a trigram index for one source file.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		BytesScannedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_bytes_scanned_total",
				Help: "Total source bytes scanned while building indexes.",
			},
		),
		ChunksWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_chunks_written_total",
				Help: "Total chunks written across all index builds.",
			},
		),
		TrigramsWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_trigrams_written_total",
				Help: "Total distinct trigram postings lists written across all index builds.",
			},
		),
		IndexBytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_index_bytes_written_total",
				Help: "Total bytes written to index files.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grop_queries_total",
				Help: "Total search queries by outcome (success, error, cancelled, parse_error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grop_query_latency_seconds",
				Help:    "Search query latency in seconds, from rewrite through verification.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		CandidateChunksCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grop_candidate_chunks",
				Help:    "Number of candidate chunk IDs the evaluator emitted per query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		ChunksVerifiedCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grop_chunks_verified",
				Help:    "Number of candidate chunks the verifier actually scanned per query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		MatchesReturnedCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grop_matches_returned",
				Help:    "Number of matched lines returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_cache_hits_total",
				Help: "Total query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grop_cache_misses_total",
				Help: "Total query cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "grop_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.BuildsTotal,
		m.BuildDuration,
		m.BytesScannedTotal,
		m.ChunksWrittenTotal,
		m.TrigramsWrittenTotal,
		m.IndexBytesWritten,
		m.QueriesTotal,
		m.QueryLatency,
		m.CandidateChunksCount,
		m.ChunksVerifiedCount,
		m.MatchesReturnedCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
