package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_total",
		Help: "Total number of committed purchases",
	})

	PurchasesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Total number of failed purchase attempts",
	}, []string{"reason"})

	PurchaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "purchase_latency_seconds",
		Help:    "Latency of the purchase transaction",
		Buckets: prometheus.DefBuckets,
	})

	UnitsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_units_sold_total",
		Help: "Total number of content units allocated to buyers",
	})

	BonusCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_bonus_credited_total",
		Help: "Total number of referral bonus credits",
	})

	BonusWithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonus_withdrawals_total",
		Help: "Total number of bonus-to-balance withdrawals",
	})

	OutboxDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Total number of outbox events published to the broker",
	})

	OutboxDispatchFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dispatch_failed_total",
		Help: "Total number of failed outbox publish attempts",
	})

	DeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_total",
		Help: "Total number of order delivery notifications sent",
	})

	DeliveriesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_failed_total",
		Help: "Total number of failed delivery notifications",
	})

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
