package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HubConnections tracks live notification stream connections.
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldops_hub_connections",
			Help: "Number of connected notification subscribers",
		},
	)

	// HubDroppedMessages counts pushes dropped because a subscriber buffer was full or dead.
	HubDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldops_hub_dropped_messages_total",
			Help: "Total notification pushes dropped on slow or dead connections",
		},
	)

	// RuleNotifications counts notifications created by the rule engine per rule type.
	RuleNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_rule_notifications_total",
			Help: "Total advisory notifications created by the rule engine",
		},
		[]string{"rule"},
	)

	// SchedulerTicks counts background job executions by job name and result (ok|error).
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_scheduler_ticks_total",
			Help: "Total background scheduler ticks",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldops_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
