package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/quantlab-io/tradecost/internal/latency"
)

// MetricsRegistry holds the Prometheus metrics exposed on /metrics. The
// registry is per-instance so servers can be built and torn down freely.
type MetricsRegistry struct {
	registry *prometheus.Registry

	SimulationsTotal *prometheus.CounterVec
	BatchesTotal     prometheus.Counter
	BatchItemsTotal  prometheus.Counter

	StageDuration *prometheus.HistogramVec

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheHitRatio prometheus.Gauge

	MarketUpdates prometheus.Counter
}

// NewMetricsRegistry creates and registers the full metric set
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		SimulationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecost_simulations_total",
				Help: "Total number of simulations by outcome",
			},
			[]string{"status"},
		),

		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_batches_total",
				Help: "Total number of accepted batches",
			},
		),

		BatchItemsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_batch_items_total",
				Help: "Total number of batch items submitted",
			},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradecost_stage_duration_ms",
				Help:    "Pipeline stage duration in milliseconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
			},
			[]string{"stage"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_cache_hits_total",
				Help: "Total market-parameter cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_cache_misses_total",
				Help: "Total market-parameter cache misses",
			},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecost_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		MarketUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecost_market_updates_total",
				Help: "Total processed market data updates",
			},
		),
	}

	m.registry.MustRegister(
		m.SimulationsTotal,
		m.BatchesTotal,
		m.BatchItemsTotal,
		m.StageDuration,
		m.CacheHits,
		m.CacheMisses,
		m.CacheHitRatio,
		m.MarketUpdates,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSimulation counts one simulation outcome
func (m *MetricsRegistry) RecordSimulation(status string) {
	m.SimulationsTotal.WithLabelValues(status).Inc()
}

// RecordBatch counts one accepted batch and its items
func (m *MetricsRegistry) RecordBatch(items int) {
	m.BatchesTotal.Inc()
	m.BatchItemsTotal.Add(float64(items))
}

// ObserveStages pushes the latest per-stage averages into the duration
// histogram.
func (m *MetricsRegistry) ObserveStages(stages map[latency.Stage]latency.Metrics) {
	for stage, metrics := range stages {
		if metrics.Count == 0 {
			continue
		}
		m.StageDuration.WithLabelValues(string(stage)).Observe(metrics.Average)
	}
}

// SyncCacheCounters aligns the Prometheus counters with the cache's own
// counters and refreshes the hit-ratio gauge. Counters only move forward,
// so the deltas are computed against the current exported values.
func (m *MetricsRegistry) SyncCacheCounters(hits, misses int64) {
	currentHits := counterValue(m.CacheHits)
	currentMisses := counterValue(m.CacheMisses)

	if delta := float64(hits) - currentHits; delta > 0 {
		m.CacheHits.Add(delta)
	}
	if delta := float64(misses) - currentMisses; delta > 0 {
		m.CacheMisses.Add(delta)
	}

	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// counterValue reads a counter back through the client_model protobuf
func counterValue(c prometheus.Counter) float64 {
	var pb io_prometheus_client.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
