package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts cart write contention and self-healing.
type CartMetrics struct {
	mutations *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	pruned    prometheus.Counter
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_mutations_total",
		Help:      "Committed cart mutations by operation.",
	}, []string{"operation"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_version_conflicts_total",
		Help:      "Cart writes rejected by the version check.",
	}, []string{"operation"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_stale_items_pruned_total",
		Help:      "Cart items dropped because their variant no longer resolves.",
	})
	reg.MustRegister(mutations, conflicts, pruned)
	return &CartMetrics{mutations: mutations, conflicts: conflicts, pruned: pruned}
}

func (c *CartMetrics) IncMutation(operation string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(operation).Inc()
}

func (c *CartMetrics) IncConflict(operation string) {
	if c == nil || c.conflicts == nil {
		return
	}
	c.conflicts.WithLabelValues(operation).Inc()
}

func (c *CartMetrics) AddPruned(n int) {
	if c == nil || c.pruned == nil || n <= 0 {
		return
	}
	c.pruned.Add(float64(n))
}
