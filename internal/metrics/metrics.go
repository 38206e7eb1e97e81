// Package metrics exposes the core's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_orders_submitted_total",
		Help: "Orders accepted by the matching engine.",
	})
	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractionfi_orders_rejected_total",
		Help: "Submissions rejected by validation or failed at commit, by error code.",
	}, []string{"code"})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_orders_cancelled_total",
		Help: "Orders cancelled by their owner.",
	})
	TradesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_trades_executed_total",
		Help: "Trades recorded by the matching engine.",
	})
	CommitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_commit_retries_total",
		Help: "Submission commits retried after ledger conflicts.",
	})
	BroadcastSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_broadcast_sends_total",
		Help: "Frames queued to subscribers.",
	})
	BroadcastEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fractionfi_broadcast_evictions_total",
		Help: "Subscribers evicted for failing or stalling on send.",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fractionfi_subscribers",
		Help: "Currently connected feed subscribers.",
	})
)
