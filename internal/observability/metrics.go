package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec
	ingestRunsTotal    *prometheus.CounterVec
	ingestRowsTotal    *prometheus.CounterVec
	ingestLatency      prometheus.Histogram
	cacheLookupsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		ingestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_ingest_runs_total",
			Help: "Roster ingestion attempts by file kind and outcome.",
		}, []string{"kind", "outcome"})

		ingestRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_ingest_rows_total",
			Help: "Rows read during ingestion, split into accepted and rejected.",
		}, []string{"result"})

		ingestLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_ingest_duration_seconds",
			Help:    "Duration of roster ingestion from decode to publish.",
			Buckets: prometheus.DefBuckets,
		})

		cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_cache_lookups_total",
			Help: "Record cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			ingestRunsTotal,
			ingestRowsTotal,
			ingestLatency,
			cacheLookupsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// IngestRuns counts ingestion attempts.
func IngestRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return ingestRunsTotal
}

// IngestRows counts accepted and rejected rows.
func IngestRows() *prometheus.CounterVec {
	RegisterMetrics()
	return ingestRowsTotal
}

// IngestLatency observes ingestion duration.
func IngestLatency() prometheus.Histogram {
	RegisterMetrics()
	return ingestLatency
}

// CacheLookups counts cache hits and misses.
func CacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheLookupsTotal
}
