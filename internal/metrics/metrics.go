package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	BackendQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "backend_queries_total",
		Help:      "Total executor calls by backend, operation and result status.",
	}, []string{"backend", "op", "status"})

	BackendQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "backend_query_duration_seconds",
		Help:      "Executor call duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"backend", "op"})

	CountCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "count_cache_hits_total",
		Help:      "Total number of result-count cache hits.",
	})

	CountCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "count_cache_misses_total",
		Help:      "Total number of result-count cache misses.",
	})

	CountCacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "count_cache_evictions_total",
		Help:      "Entries dropped from the result-count cache by capacity trimming.",
	})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "searches_total",
		Help:      "Search requests by mode (listing or rss) and outcome.",
	}, []string{"mode", "outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BackendQueriesTotal,
		BackendQueryDuration,
		CountCacheHitsTotal,
		CountCacheMissesTotal,
		CountCacheEvictionsTotal,
		SearchesTotal,
	)
}
