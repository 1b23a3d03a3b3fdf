// Package metrics exposes Prometheus counters for the billing workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification outcomes used as label values.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// BillingMetrics groups the counters the application records.
type BillingMetrics struct {
	paymentsRecorded     *prometheus.CounterVec
	paymentsFailed       prometheus.Counter
	paymentAmount        *prometheus.HistogramVec
	notifications        *prometheus.CounterVec
	subscriptionsExpired prometheus.Counter
	sweepFailures        prometheus.Counter
}

// New registers the billing metrics on registry.
func New(registry prometheus.Registerer) *BillingMetrics {
	factory := promauto.With(registry)
	return &BillingMetrics{
		paymentsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payments_recorded_total",
				Help: "Payments committed, by previous subscription status.",
			},
			[]string{"previous_status"},
		),
		paymentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_failed_total",
			Help: "Payment transactions that were rolled back.",
		}),
		paymentAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_payment_amount",
				Help:    "Distribution of recorded payment amounts.",
				Buckets: prometheus.ExponentialBuckets(10, 2, 8), // 10 .. 1280
			},
			[]string{"billing_cycle"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_notifications_total",
				Help: "Notification attempts by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		subscriptionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_subscriptions_expired_total",
			Help: "Subscriptions moved to expired by reconciliation.",
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_reconcile_failures_total",
			Help: "Reconciliation runs that returned an error.",
		}),
	}
}

func (m *BillingMetrics) PaymentRecorded(previousStatus, billingCycle string, amount float64) {
	m.paymentsRecorded.WithLabelValues(previousStatus).Inc()
	m.paymentAmount.WithLabelValues(billingCycle).Observe(amount)
}

func (m *BillingMetrics) PaymentFailed() {
	m.paymentsFailed.Inc()
}

func (m *BillingMetrics) Notification(channel, outcome string) {
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

func (m *BillingMetrics) SubscriptionsExpired(n int) {
	m.subscriptionsExpired.Add(float64(n))
}

func (m *BillingMetrics) ReconcileFailed() {
	m.sweepFailures.Inc()
}
