package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_payments_collected_total",
			Help: "Total number of payments collected successfully",
		},
		[]string{"method", "channel"},
	)

	PaymentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_payments_failed_total",
			Help: "Total number of failed payment collection attempts",
		},
		[]string{"method", "error_code"},
	)

	PaymentAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_payment_amount_cents",
			Help:    "Distribution of collected payment amounts in cents",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		},
		[]string{"method"},
	)

	TransitionsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transitions_evaluated_total",
			Help: "Total number of job status transitions evaluated",
		},
		[]string{"from", "to", "result"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_webhooks_received_total",
			Help: "Total number of inbound processor webhooks by outcome",
		},
		[]string{"outcome"},
	)

	LedgerInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_ledger_inconsistencies_total",
			Help: "Total number of partially applied ledger writes needing reconciliation",
		},
	)

	TrustAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trust_adjustments_total",
			Help: "Total number of trust score adjustments by direction",
		},
		[]string{"direction"},
	)
)
