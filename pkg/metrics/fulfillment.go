package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics tracks checkout, shipment and payment outcomes.
type FulfillmentMetrics struct {
	checkouts     *prometheus.CounterVec
	compensations prometheus.Counter
	transitions   *prometheus.CounterVec
	reconciled    *prometheus.CounterVec
}

func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "attempts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "compensations_total",
		Help:      "Checkouts whose stock reservations were rolled back.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shipment",
		Name:      "transitions_total",
		Help:      "Applied shipment status transitions.",
	}, []string{"to"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "reconciled_total",
		Help:      "Gateway statuses reconciled by bucket.",
	}, []string{"gateway", "bucket"})
	reg.MustRegister(checkouts, compensations, transitions, reconciled)
	return &FulfillmentMetrics{
		checkouts:     checkouts,
		compensations: compensations,
		transitions:   transitions,
		reconciled:    reconciled,
	}
}

func (m *FulfillmentMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) IncCompensation() {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.Inc()
}

func (m *FulfillmentMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *FulfillmentMetrics) IncReconciled(gateway, bucket string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(gateway), normalizeLabel(bucket)).Inc()
}
