// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package metrics exposes Prometheus instrumentation for regsync:
//   - registry request latency and outcomes
//   - sync task outcomes per operation
//   - type cache efficiency
//   - queue delivery, requeue and dead-letter counts
//   - circuit breaker state
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry transport metrics
	RegistryRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regsync_registry_request_duration_seconds",
			Help:    "Duration of registry HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)

	RegistryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_registry_requests_total",
			Help: "Total number of registry HTTP requests by status code",
		},
		[]string{"method", "resource", "status"}, // status: HTTP code or "transport"
	)

	// Sync outcomes
	SyncTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_sync_tasks_total",
			Help: "Total number of executed sync tasks by outcome",
		},
		[]string{"op", "kind", "outcome"}, // outcome: pushed, skipped, retry, fatal, error
	)

	SyncTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regsync_sync_task_duration_seconds",
			Help:    "Duration of sync task execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RemoteWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_remote_writes_total",
			Help: "Total number of registry writes by kind of write",
		},
		[]string{"write"}, // create, update, dependent_create, edge_create, edge_update, delete, type_create, field_create
	)

	StaleReferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regsync_stale_references_total",
			Help: "Total number of remote ids cleared after a 404 or an edge conflict",
		},
	)

	// Type cache metrics
	TypeCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_type_cache_hits_total",
			Help: "Total number of type cache hits",
		},
		[]string{"type"}, // entity_type, relationship_type
	)

	TypeCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_type_cache_misses_total",
			Help: "Total number of type cache misses",
		},
		[]string{"type"},
	)

	// Queue metrics
	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_queue_enqueued_total",
			Help: "Total number of tasks offered to the queue by result",
		},
		[]string{"op", "result"}, // result: published, duplicate, skipped, error
	)

	QueueRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_queue_requeued_total",
			Help: "Total number of tasks scheduled for re-delivery after a retry outcome",
		},
		[]string{"op"},
	)

	QueueDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_queue_dead_lettered_total",
			Help: "Total number of tasks moved to the dead-letter topic",
		},
		[]string{"op", "reason"}, // reason: fatal, max_attempts, invalid
	)

	QueueDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regsync_queue_duplicate_messages_total",
			Help: "Total number of redelivered messages dropped by UUID",
		},
	)

	QueueInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regsync_queue_in_flight",
			Help: "Number of tasks currently executing",
		},
	)

	// Dispatch metrics
	DispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_dispatch_errors_total",
			Help: "Total number of enqueue failures raised while dispatching record changes",
		},
		[]string{"action"}, // ignore, log, raise
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regsync_api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRegistryRequest records one registry round trip. A zero status means
// the request never got a response.
func RecordRegistryRequest(method, resource string, status int, duration time.Duration) {
	RegistryRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
	label := "transport"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RegistryRequests.WithLabelValues(method, resource, label).Inc()
}

// RecordSyncTask records the outcome of one executed task.
func RecordSyncTask(op, kind, outcome string, duration time.Duration) {
	SyncTasks.WithLabelValues(op, kind, outcome).Inc()
	SyncTaskDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRemoteWrite counts one registry write.
func RecordRemoteWrite(write string) {
	RemoteWrites.WithLabelValues(write).Inc()
}

// RecordTypeCache records a type cache lookup.
func RecordTypeCache(typ string, hit bool) {
	if hit {
		TypeCacheHits.WithLabelValues(typ).Inc()
		return
	}
	TypeCacheMisses.WithLabelValues(typ).Inc()
}

// RecordEnqueue records the result of offering a task to the queue.
func RecordEnqueue(op, result string) {
	QueueEnqueued.WithLabelValues(op, result).Inc()
}

// RecordDeadLetter records a task moved to the dead-letter topic.
func RecordDeadLetter(op, reason string) {
	QueueDeadLettered.WithLabelValues(op, reason).Inc()
}

// TrackInFlight increments (inc=true) or decrements the in-flight gauge.
func TrackInFlight(inc bool) {
	if inc {
		QueueInFlight.Inc()
		return
	}
	QueueInFlight.Dec()
}
