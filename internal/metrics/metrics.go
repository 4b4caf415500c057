// Package metrics exposes the Prometheus instruments of the leave roster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditWriteFailures counts ledger appends that failed after the primary
	// write went through. A non-zero rate means gaps in the history.
	AuditWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaveroster_audit_write_failures_total",
		Help: "Audit ledger appends that failed and were suppressed",
	}, []string{"collection", "change_type"})

	// LeaveWrites counts leave week writes by action
	LeaveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaveroster_leave_writes_total",
		Help: "Leave week writes by action and result",
	}, []string{"action", "result"})

	// WriteConflicts counts optimistic concurrency retries
	WriteConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaveroster_write_conflicts_total",
		Help: "Version conflicts that caused a transaction retry",
	})

	// PrivilegedCalls counts revert and hide calls by outcome
	PrivilegedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaveroster_privileged_calls_total",
		Help: "Revert and hide calls by operation and outcome",
	}, []string{"operation", "outcome"})
)
