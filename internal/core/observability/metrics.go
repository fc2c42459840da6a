package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcel_analyses_total",
			Help: "Completed parcel analyses by overall status.",
		},
		[]string{"overall_status"},
	)

	analysisDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parcel_analysis_duration_seconds",
			Help:    "End-to-end duration of a parcel analysis.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	layerLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_layer_loads_total",
			Help: "Reference layer loads by outcome (ok, cached, missing, corrupt).",
		},
		[]string{"layer", "outcome"},
	)

	layerMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_layer_matches_total",
			Help: "Reference features matched against submitted parcels.",
		},
		[]string{"layer"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_op_duration_seconds",
			Help:    "Duration of Redis operations by op and result.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	invalidationMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_invalidation_messages_total",
			Help: "Layer-change events consumed, by outcome.",
		},
		[]string{"outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_cache_results_total",
			Help: "Report cache results by outcome.",
		},
		[]string{"outcome"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveAnalysis(overallStatus string, durationSeconds float64) {
	analysesTotal.WithLabelValues(overallStatus).Inc()
	analysisDurationSeconds.Observe(durationSeconds)
}

func IncLayerLoad(layer, outcome string) {
	layerLoadsTotal.WithLabelValues(layer, outcome).Inc()
}

func AddLayerMatches(layer string, n int) {
	if n <= 0 {
		return
	}
	layerMatchesTotal.WithLabelValues(layer).Add(float64(n))
}

func IncCacheHit()   { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss()  { cacheResults.WithLabelValues("miss").Inc() }
func IncCacheError() { cacheResults.WithLabelValues("error").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func IncInvalidation(outcome string) {
	invalidationMessages.WithLabelValues(outcome).Inc()
}
