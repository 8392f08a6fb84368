// Package metrics 定义进程级 Prometheus 指标，/metrics 端点统一暴露
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fintrack"

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests by method, route and status.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// RecurringTransitions action: paid/unpaid/auto_reset，result: ok/rejected/error
var RecurringTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "transitions_total",
	Help:      "Payment status transitions of recurring definitions.",
}, []string{"action", "result"})

// RecurringPartialFailures 流水已写入但后续步骤失败的次数
var RecurringPartialFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "partial_failures_total",
	Help:      "Transitions that failed after the ledger write, by failed step.",
}, []string{"step"})

var SweepResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "sweep_resets_total",
	Help:      "Recurring definitions reset to unpaid by the auto-reset sweep.",
})

// AuditViolations kind: paid_without_entry
var AuditViolations = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "recurring",
	Name:      "audit_violations",
	Help:      "Definitions violating the status/ledger invariant in the last audit run.",
}, []string{"kind"})

// OutboxMessages result: sent/retry/failed
var OutboxMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "outbox",
	Name:      "messages_total",
	Help:      "Outbox messages processed by result.",
}, []string{"result"})
