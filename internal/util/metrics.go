package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PledgesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pledges_created_total",
		Help: "Total number of pledges created or reactivated",
	})

	PledgesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pledges_committed_total",
		Help: "Total number of pledges committed during grace period",
	})

	PledgesWithdrawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pledges_withdrawn_total",
		Help: "Total number of withdrawn pledges",
	}, []string{"reason"})

	CampaignsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaigns_published_total",
		Help: "Total number of campaigns published",
	})

	CampaignsLockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaigns_locked_total",
		Help: "Total number of campaigns locked and settled",
	})

	SettlementIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_intents_generated_total",
		Help: "Total number of payment intents generated at settlement",
	})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of the lock-and-settle transaction",
		Buckets: prometheus.DefBuckets,
	})

	PaymentSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_succeeded_total",
		Help: "Total number of payment intents collected automatically",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_failed_total",
		Help: "Total number of failed collection attempts",
	})

	IntentRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intent_retries_total",
		Help: "Total number of retry dispatches",
	}, []string{"result"})

	IntentsEscalatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_escalated_total",
		Help: "Total number of intents handed to AR collection",
	})

	ReconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_reconciliation_runs_total",
		Help: "Total number of retry reconciliation job runs",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
