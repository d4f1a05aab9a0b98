// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package queue

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Requeuer computes re-delivery delays and holds the timers that fire them.
type Requeuer struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewRequeuer creates a Requeuer. A negative jitter selects
// backoff.DefaultRandomizationFactor.
func NewRequeuer(initial, maxInterval time.Duration, multiplier, jitter float64) *Requeuer {
	if initial <= 0 {
		initial = backoff.DefaultInitialInterval
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	if multiplier < 1 {
		multiplier = backoff.DefaultMultiplier
	}
	if jitter < 0 {
		jitter = backoff.DefaultRandomizationFactor
	}
	return &Requeuer{
		initial:    initial,
		max:        maxInterval,
		multiplier: multiplier,
		jitter:     jitter,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// Delay returns the wait before the given attempt (1-based).
func (r *Requeuer) Delay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.initial,
		RandomizationFactor: r.jitter,
		Multiplier:          r.multiplier,
		MaxInterval:         r.max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// After runs fn once d has elapsed. It returns false after Stop.
func (r *Requeuer) After(d time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, live := r.timers[t]
		delete(r.timers, t)
		r.mu.Unlock()
		if live {
			fn()
		}
	})
	r.timers[t] = struct{}{}
	return true
}

// Pending returns the number of scheduled re-deliveries.
func (r *Requeuer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every scheduled re-delivery and returns how many were dropped.
func (r *Requeuer) Stop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	n := 0
	for t := range r.timers {
		if t.Stop() {
			n++
		}
		delete(r.timers, t)
	}
	return n
}
