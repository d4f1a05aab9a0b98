// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRegistryRequest(t *testing.T) {
	before := testutil.ToFloat64(RegistryRequests.WithLabelValues("PUT", "entities", "404"))
	RecordRegistryRequest("PUT", "entities", 404, 20*time.Millisecond)
	if got := testutil.ToFloat64(RegistryRequests.WithLabelValues("PUT", "entities", "404")); got != before+1 {
		t.Errorf("404 counter = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(RegistryRequests.WithLabelValues("GET", "entity_types", "transport"))
	RecordRegistryRequest("GET", "entity_types", 0, time.Millisecond)
	if got := testutil.ToFloat64(RegistryRequests.WithLabelValues("GET", "entity_types", "transport")); got != before+1 {
		t.Errorf("transport counter = %v, want %v", got, before+1)
	}
}

func TestRecordSyncTask(t *testing.T) {
	before := testutil.ToFloat64(SyncTasks.WithLabelValues("push_entity", "person", "retry"))
	RecordSyncTask("push_entity", "person", "retry", 5*time.Millisecond)
	RecordSyncTask("push_entity", "person", "retry", 5*time.Millisecond)
	if got := testutil.ToFloat64(SyncTasks.WithLabelValues("push_entity", "person", "retry")); got != before+2 {
		t.Errorf("retry counter = %v, want %v", got, before+2)
	}
}

func TestRecordTypeCache(t *testing.T) {
	hits := testutil.ToFloat64(TypeCacheHits.WithLabelValues("entity_type"))
	misses := testutil.ToFloat64(TypeCacheMisses.WithLabelValues("entity_type"))

	RecordTypeCache("entity_type", true)
	RecordTypeCache("entity_type", false)
	RecordTypeCache("entity_type", false)

	if got := testutil.ToFloat64(TypeCacheHits.WithLabelValues("entity_type")); got != hits+1 {
		t.Errorf("hits = %v, want %v", got, hits+1)
	}
	if got := testutil.ToFloat64(TypeCacheMisses.WithLabelValues("entity_type")); got != misses+2 {
		t.Errorf("misses = %v, want %v", got, misses+2)
	}
}

func TestQueueMetrics(t *testing.T) {
	RecordEnqueue("push_entity", "published")
	RecordDeadLetter("push_relationship", "fatal")

	if got := testutil.ToFloat64(QueueDeadLettered.WithLabelValues("push_relationship", "fatal")); got < 1 {
		t.Errorf("dead letter counter = %v", got)
	}

	base := testutil.ToFloat64(QueueInFlight)
	TrackInFlight(true)
	TrackInFlight(true)
	TrackInFlight(false)
	if got := testutil.ToFloat64(QueueInFlight); got != base+1 {
		t.Errorf("in flight = %v, want %v", got, base+1)
	}
}

// TestCircuitBreakerMetrics tests circuit breaker metric recording
func TestCircuitBreakerMetrics(t *testing.T) {
	cbName := "registry-test"

	CircuitBreakerState.WithLabelValues(cbName).Set(2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues(cbName)); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}

	CircuitBreakerTransitions.WithLabelValues(cbName, "closed", "open").Inc()
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues(cbName, "closed", "open")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}
