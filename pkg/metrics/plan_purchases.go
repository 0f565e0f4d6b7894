package metrics

import "github.com/prometheus/client_golang/prometheus"

// PlanPurchaseMetrics counts reconciliation outcomes and consumption results.
type PlanPurchaseMetrics struct {
	reconciled *prometheus.CounterVec
	consumed   *prometheus.CounterVec
	inventory  *prometheus.GaugeVec
}

func NewPlanPurchaseMetrics(reg prometheus.Registerer) *PlanPurchaseMetrics {
	if reg == nil {
		return &PlanPurchaseMetrics{}
	}
	m := &PlanPurchaseMetrics{
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_purchase_reconcile_total",
			Help:      "Checkout sessions reconciled, by outcome and source.",
		}, []string{"outcome", "source"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_entitlement_consume_total",
			Help:      "Entitlement consumption attempts, by result.",
		}, []string{"result"}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plan_purchases",
			Help:      "Plan purchases by state at the last inventory run.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.reconciled, m.consumed, m.inventory)
	return m
}

func (m *PlanPurchaseMetrics) ObserveReconcile(outcome, source string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(outcome), normalizeLabel(source)).Inc()
}

func (m *PlanPurchaseMetrics) ObserveConsume(result string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(result)).Inc()
}

// SetInventory publishes the latest used/available/expired split.
func (m *PlanPurchaseMetrics) SetInventory(used, available, expired int64) {
	if m == nil || m.inventory == nil {
		return
	}
	m.inventory.WithLabelValues("used").Set(float64(used))
	m.inventory.WithLabelValues("available").Set(float64(available))
	m.inventory.WithLabelValues("expired").Set(float64(expired))
}
