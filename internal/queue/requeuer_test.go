// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package queue

import (
	"testing"
	"time"
)

func TestRequeuerDelay(t *testing.T) {
	t.Parallel()
	r := NewRequeuer(time.Second, 10*time.Second, 2, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{25, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := r.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRequeuerDelayJitterStaysInBounds(t *testing.T) {
	t.Parallel()
	r := NewRequeuer(time.Second, time.Minute, 2, 0.5)
	for i := 0; i < 50; i++ {
		d := r.Delay(3)
		if d < 2*time.Second || d > 6*time.Second {
			t.Fatalf("Delay(3) = %v, want within [2s, 6s]", d)
		}
	}
}

func TestRequeuerAfterAndStop(t *testing.T) {
	t.Parallel()
	r := NewRequeuer(time.Millisecond, time.Millisecond, 1, 0)

	fired := make(chan struct{})
	if !r.After(time.Millisecond, func() { close(fired) }) {
		t.Fatal("After() refused before Stop")
	}
	select {
	case <-fired:
	case <-time.After(waitTimeout):
		t.Fatal("timer never fired")
	}

	r.After(time.Hour, func() { t.Error("stopped timer fired") })
	if got := r.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	if got := r.Stop(); got != 1 {
		t.Errorf("Stop() = %d, want 1", got)
	}
	if r.After(time.Millisecond, func() {}) {
		t.Error("After() accepted work after Stop")
	}
}

func TestLocks(t *testing.T) {
	t.Parallel()
	l := newLocks()
	now := time.Now()
	l.now = func() time.Time { return now }

	if !l.acquire("a", 0) {
		t.Fatal("first acquire failed")
	}
	if l.acquire("a", 0) {
		t.Error("held key acquired twice")
	}
	l.release("a")
	if !l.acquire("a", 0) {
		t.Error("released key not acquirable")
	}

	if !l.acquire("b", time.Minute) {
		t.Fatal("acquire with ttl failed")
	}
	if l.acquire("b", time.Minute) {
		t.Error("key acquired inside its window")
	}
	now = now.Add(2 * time.Minute)
	if !l.acquire("b", time.Minute) {
		t.Error("expired key not acquirable")
	}
}
