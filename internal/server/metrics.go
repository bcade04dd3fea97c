// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// searchRequestsTotal counts completed search and suggestion requests,
	// partitioned by outcome: "ok" or "error".
	searchRequestsTotal *prometheus.CounterVec

	// ingestUploadsTotal counts files staged via POST /api/ingest.
	ingestUploadsTotal prometheus.Counter

	// ingestCommitsTotal counts completed commit requests, partitioned by
	// outcome: "ok" or "error".
	ingestCommitsTotal *prometheus.CounterVec

	// ingestDocumentsTotal counts documents successfully bulk-indexed by
	// commit requests.
	ingestDocumentsTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default,
// which keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		searchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oslab",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search and suggestion requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestUploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oslab",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total number of files staged for ingestion.",
		}),

		ingestCommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oslab",
			Subsystem: "ingest",
			Name:      "commits_total",
			Help:      "Total number of ingest commits completed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestDocumentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oslab",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents bulk-indexed by ingest commits.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oslab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oslab",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
