package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// DependencyMetrics tracks calls to external services such as the address
// registry, split by operation and outcome.
type DependencyMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	cache    *prometheus.CounterVec
}

func NewDependencyMetrics(reg prometheus.Registerer, dependency string) *DependencyMetrics {
	if reg == nil {
		return &DependencyMetrics{}
	}
	labels := prometheus.Labels{"dependency": dependency}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "dependency_request_duration_seconds",
		Help:        "Latency of outbound dependency calls.",
		Buckets:     []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		ConstLabels: labels,
	}, []string{"operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "dependency_requests_total",
		Help:        "Outbound dependency calls by outcome.",
		ConstLabels: labels,
	}, []string{"operation", "outcome"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "dependency_cache_total",
		Help:        "Dependency cache lookups by result.",
		ConstLabels: labels,
	}, []string{"operation", "result"})
	reg.MustRegister(duration, calls, cache)
	return &DependencyMetrics{duration: duration, calls: calls, cache: cache}
}

// Observe records one upstream call. outcome is "ok", "error" or "timeout".
func (d *DependencyMetrics) Observe(operation, outcome string, took time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(operation).Observe(took.Seconds())
	d.calls.WithLabelValues(operation, outcome).Inc()
}

func (d *DependencyMetrics) CacheHit(operation string) {
	if d == nil || d.cache == nil {
		return
	}
	d.cache.WithLabelValues(operation, "hit").Inc()
}

func (d *DependencyMetrics) CacheMiss(operation string) {
	if d == nil || d.cache == nil {
		return
	}
	d.cache.WithLabelValues(operation, "miss").Inc()
}
