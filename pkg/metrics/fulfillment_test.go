package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFulfillmentMetricsCounters(t *testing.T) {
	m := NewFulfillmentMetrics(prometheus.NewRegistry())
	m.IncCheckout("success")
	m.IncCheckout("success")
	m.IncCompensation()
	m.IncTransition("delivered")
	m.IncReconciled("payos", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("payos", "success")))
}

func TestOutboxMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewOutboxMetrics(nil)
	m.IncPublished("order_created")
	m.IncFailed("order_created")
	m.IncDeadLettered("order_created", "max_attempts")

	var nilMetrics *FulfillmentMetrics
	nilMetrics.IncCheckout("failure")
}

func TestOutboxMetricsLabels(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	m.IncPublished("order_created")
	m.IncDeadLettered("", "non_retryable")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("order_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dlq.WithLabelValues("unknown", "non_retryable")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.failed))
}
