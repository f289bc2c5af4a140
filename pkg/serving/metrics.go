// Copyright 2025 Shadow Atlas Project
//
// Prometheus metrics for the /metrics endpoint: query_latency_seconds,
// cache_hit_rate, queries_total, exactly as named in spec.md §6. Same
// registry-owned-gauges-and-counters shape as the teacher's
// system_health_logging.HealthLogger.

package serving

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the prometheus collectors the serving layer publishes.
type Metrics struct {
	registry *prometheus.Registry

	queryLatency prometheus.Histogram
	queriesTotal prometheus.Counter

	mu        sync.Mutex
	hits      uint64
	total     uint64
	cacheRate prometheus.Gauge
}

// NewMetrics constructs and registers every collector against a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "query_latency_seconds",
			Help:    "Latency of lookup queries served by the Atlas server.",
			Buckets: prometheus.DefBuckets,
		}),
		queriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queries_total",
			Help: "Total number of lookup queries served.",
		}),
		cacheRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Fraction of lookup queries served from the resolution cache.",
		}),
	}

	reg.MustRegister(m.queryLatency, m.queriesTotal, m.cacheRate)
	return m
}

// Registry returns the registry the HTTP /metrics handler serves.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveQuery records one lookup's latency and updates the running
// cache hit rate.
func (m *Metrics) ObserveQuery(latency time.Duration, cacheHit bool) {
	m.queryLatency.Observe(latency.Seconds())
	m.queriesTotal.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if cacheHit {
		m.hits++
	}
	m.cacheRate.Set(float64(m.hits) / float64(m.total))
}
