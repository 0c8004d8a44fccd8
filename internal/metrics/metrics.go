// Package metrics backs GET /metrics with Prometheus exposition via
// promauto/promhttp. The load-signal snapshot the breaker consults is
// pushed into the same gauges this package exposes, so the exposition and
// the admission decision never drift apart.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every gauge/counter the service exposes. Construct one
// per process with New and update it from the coordinator and the cache.
type Registry struct {
	WorkerUtilisation prometheus.Gauge
	QueueDepthRatio   prometheus.Gauge
	MemoryRatio       prometheus.Gauge
	BreakerState      *prometheus.GaugeVec

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	BreakerRejections *prometheus.CounterVec
	ComputeRequests   *prometheus.CounterVec
}

// New registers every metric against a fresh registry and returns it, the
// way promauto.With(reg) is used when a process wants an isolated registry
// instead of the global default (useful for tests).
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		WorkerUtilisation: f.NewGauge(prometheus.GaugeOpts{
			Name: "epcalc_worker_utilisation",
			Help: "Fraction of worker pool slots currently busy, in [0,1].",
		}),
		QueueDepthRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "epcalc_queue_depth_ratio",
			Help: "Fraction of the compute job queue currently occupied, in [0,1].",
		}),
		MemoryRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "epcalc_memory_ratio",
			Help: "Fraction of the configured memory limit currently in use, in [0,1].",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "epcalc_breaker_state",
			Help: "1 for the breaker's current state, 0 otherwise, labeled by state name.",
		}, []string{"state"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "epcalc_cache_hits_total",
			Help: "Result cache lookups resolved from a Ready entry.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "epcalc_cache_misses_total",
			Help: "Result cache lookups that triggered a producer call.",
		}),
		CacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "epcalc_cache_evictions_total",
			Help: "Result cache entries evicted by the LRU entry limit.",
		}),
		BreakerRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epcalc_breaker_rejections_total",
			Help: "Requests rejected by the circuit breaker, labeled by state.",
		}, []string{"state"}),
		ComputeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "epcalc_compute_requests_total",
			Help: "Compute endpoint requests, labeled by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
}

// SetBreakerState flips the one-hot breaker state gauge vector.
func (r *Registry) SetBreakerState(states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		r.BreakerState.WithLabelValues(s).Set(v)
	}
}
