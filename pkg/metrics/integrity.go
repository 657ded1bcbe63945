package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntegrityMetrics tracks inventory reference cleanup.
type IntegrityMetrics struct {
	stripped prometheus.Counter
	orphans  prometheus.Counter
	failures *prometheus.CounterVec
}

func NewIntegrityMetrics(reg prometheus.Registerer) *IntegrityMetrics {
	if reg == nil {
		return &IntegrityMetrics{}
	}
	stripped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_references_stripped_total",
		Help:      "Products updated while stripping a deleted branch.",
	})
	orphans := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_orphans_removed_total",
		Help:      "Inventory entries removed by the orphan sweep.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_cleanup_failures_total",
		Help:      "Failed cleanup runs by trigger.",
	}, []string{"trigger"})
	reg.MustRegister(stripped, orphans, failures)
	return &IntegrityMetrics{stripped: stripped, orphans: orphans, failures: failures}
}

func (m *IntegrityMetrics) AddStripped(n int64) {
	if m == nil || m.stripped == nil || n <= 0 {
		return
	}
	m.stripped.Add(float64(n))
}

func (m *IntegrityMetrics) AddOrphansRemoved(n int) {
	if m == nil || m.orphans == nil || n <= 0 {
		return
	}
	m.orphans.Add(float64(n))
}

func (m *IntegrityMetrics) IncFailure(trigger string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(trigger)).Inc()
}
