package observability

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics counts outcomes of the stock engine.
type InventoryMetrics struct {
	insufficient *prometheus.CounterVec
	violations   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
}

// NewInventoryMetrics registers the inventory collectors on reg.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	insufficient := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_insufficient_stock_total",
		Help: "Stock writes rejected because free balance would go negative.",
	}, []string{"operation"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_consistency_violations_total",
		Help: "Consistency violations detected on read, by kind.",
	}, []string{"kind"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_lifecycle_transitions_total",
		Help: "Order status transitions applied to stock, by target status.",
	}, []string{"status"})
	reg.MustRegister(insufficient, violations, transitions)
	return &InventoryMetrics{insufficient: insufficient, violations: violations, transitions: transitions}
}

// InsufficientStock counts a rejected write.
func (m *InventoryMetrics) InsufficientStock(operation string) {
	if m == nil {
		return
	}
	m.insufficient.WithLabelValues(operation).Inc()
}

// ConsistencyViolation counts one detected violation.
func (m *InventoryMetrics) ConsistencyViolation(kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind).Inc()
}

// LifecycleTransition counts an applied order status.
func (m *InventoryMetrics) LifecycleTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}
