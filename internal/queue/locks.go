// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package queue

import (
	"sync"
	"time"
)

// locks is a set of held keys. A key acquired with a ttl expires on its own;
// a zero ttl holds it until release.
type locks struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func newLocks() *locks {
	return &locks{held: make(map[string]time.Time), now: time.Now}
}

func (l *locks) acquire(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && (until.IsZero() || now.Before(until)) {
		return false
	}
	var until time.Time
	if ttl > 0 {
		until = now.Add(ttl)
	}
	l.held[key] = until
	return true
}

func (l *locks) release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}

func (l *locks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
