package kafka

import "github.com/prometheus/client_golang/prometheus"

type runnerMetrics struct {
	actions    *prometheus.CounterVec
	processing *prometheus.HistogramVec
	lag        prometheus.Gauge
	partitions prometheus.Gauge
}

// newRunnerMetrics builds the collectors. They are registered only when reg
// is non-nil, so tests can build many runners.
func newRunnerMetrics(reg prometheus.Registerer) *runnerMetrics {
	m := &runnerMetrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layer_change_actions_total",
			Help: "Cache actions taken for layer-change events (layer_evict, report_delete, generation_bump, skip_seq).",
		}, []string{"action"}),
		processing: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "layer_change_processing_seconds",
			Help:    "Time to apply one layer-change event, by op.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "layer_change_lag_seconds",
			Help: "Age of the last consumed layer-change message.",
		}),
		partitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "layer_change_assigned_partitions",
			Help: "Partitions of the layer-change topic owned by this instance.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.actions, m.processing, m.lag, m.partitions)
	}
	return m
}
