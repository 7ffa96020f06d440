package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crypto_screener",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crypto_screener",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Upstream fetch metrics ─────────────────────────────────────────────

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "upstream",
		Name:      "fetch_total",
		Help:      "Total number of upstream fetches per source and outcome.",
	}, []string{"source", "status"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crypto_screener",
		Subsystem: "upstream",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of upstream fetches per source in seconds, retries included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	FetchLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crypto_screener",
		Subsystem: "upstream",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful upstream fetch per source.",
	}, []string{"source"})

	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Total upstream retry attempts per source.",
	}, []string{"source"})
)

// ── Response cache metrics ─────────────────────────────────────────────

var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total response cache hits per source.",
	}, []string{"source"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total response cache misses per source.",
	}, []string{"source"})

	CacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Total response cache read/write failures per operation.",
	}, []string{"op"})
)

// ── Reconciliation metrics ─────────────────────────────────────────────

var (
	ReconciledRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crypto_screener",
		Subsystem: "reconcile",
		Name:      "records",
		Help:      "Number of protocol records produced by the last reconciliation.",
	})

	JoinMatches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crypto_screener",
		Subsystem: "reconcile",
		Name:      "join_matches",
		Help:      "Catalog rows matched by each joined source in the last reconciliation.",
	}, []string{"source"})

	MalformedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_screener",
		Subsystem: "reconcile",
		Name:      "malformed_rows_total",
		Help:      "Total upstream rows coalesced or skipped during decoding.",
	}, []string{"source"})
)
