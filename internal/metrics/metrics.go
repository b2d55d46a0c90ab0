// Package metrics provides Prometheus metrics for SignalCraft.
// It tracks ingestion, pipeline processing, rule evaluation, and notification
// dispatch to help identify bottlenecks and measure SLOs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "signalcraft"
)

// Ingest metrics track the webhook intake surface.
var (
	// AlertsReceivedTotal counts raw payloads received by the ingest API.
	AlertsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_received_total",
			Help:      "Total number of raw alert payloads received by the ingest API",
		},
		[]string{"workspace_id", "source"},
	)

	// AlertsRejectedTotal counts payloads rejected during normalization.
	AlertsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Total number of payloads rejected as malformed",
		},
		[]string{"workspace_id", "source"},
	)

	// DuplicateEventsTotal counts occurrences short-circuited as duplicates
	// of an already-seen source event ID.
	DuplicateEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_events_total",
			Help:      "Total number of re-delivered source events skipped",
		},
		[]string{"workspace_id", "source"},
	)
)

// Pipeline metrics track end-to-end alert processing.
var (
	// PipelineProcessedTotal counts pipeline runs by outcome.
	PipelineProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_processed_total",
			Help:      "Total number of alerts processed by the pipeline",
		},
		[]string{"workspace_id", "result"}, // result: processed, duplicate, resolved, rejected, failed
	)

	// PipelineLatency measures time from payload receipt to notification
	// enqueue. This is the key SLO metric for alert delivery.
	PipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "Time from payload receipt to routing decision in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// GroupsCreatedTotal counts new alert groups opened.
	GroupsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Total number of new alert groups created",
		},
		[]string{"workspace_id"},
	)

	// GroupsResolvedTotal counts groups resolved, labeled by trigger.
	GroupsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_resolved_total",
			Help:      "Total number of alert groups resolved",
		},
		[]string{"workspace_id", "trigger"}, // trigger: manual, recovery
	)

	// GroupOccurrences tracks the occurrence count folded into groups.
	GroupOccurrences = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_occurrences",
			Help:      "Number of occurrences per alert group at last update",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// Rule engine metrics.
var (
	// RuleEvaluationsTotal counts individual rule evaluations by outcome.
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Total number of routing rule evaluations",
		},
		[]string{"workspace_id", "outcome"}, // outcome: matched, unmatched, error
	)

	// RuleCacheHitsTotal counts rule cache hits and misses.
	RuleCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_hits_total",
			Help:      "Total number of rule cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// RuleEvaluationLatency measures time to evaluate the full rule set.
	RuleEvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_evaluation_latency_seconds",
			Help:      "Time to evaluate a workspace's routing rules in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Notification and escalation metrics.
var (
	// NotificationsEnqueuedTotal counts notification jobs enqueued.
	NotificationsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_enqueued_total",
			Help:      "Total number of notification jobs enqueued",
		},
		[]string{"workspace_id", "kind"}, // kind: rule, fallback, escalation
	)

	// NotificationsSentTotal counts notification deliveries by status.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications sent",
		},
		[]string{"workspace_id", "status"}, // status: success, failure
	)

	// EscalationsScheduledTotal counts escalation checks scheduled.
	EscalationsScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_scheduled_total",
			Help:      "Total number of escalation checks scheduled",
		},
		[]string{"workspace_id"},
	)

	// EscalationsFiredTotal counts escalation outcomes when the delayed
	// check runs.
	EscalationsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Total number of escalation checks executed",
		},
		[]string{"workspace_id", "outcome"}, // outcome: escalated, suppressed
	)
)

// Storage metrics track database and cache operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: postgres, redis; operation: read, write
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)
