// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package cache

import (
	"sync"
	"time"
)

type lruNode struct {
	key       string
	seenAt    time.Time
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

// LRU is a bounded set of recently seen keys with TTL. The queue uses it to
// drop redelivered messages by UUID.
//
// All operations are O(1): a map for lookup and a doubly-linked list with
// sentinels for recency. head.next is the newest entry, tail.prev the oldest.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*lruNode
	head  *lruNode
	tail  *lruNode

	hits   int64
	misses int64
}

// NewLRU creates an LRU holding at most capacity keys for ttl each.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*lruNode, capacity),
		head:     &lruNode{},
		tail:     &lruNode{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Seen reports whether key was recorded within the TTL. A new or expired key
// is recorded and false is returned, so the first caller wins.
func (c *LRU) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if n, ok := c.items[key]; ok {
		if !now.After(n.expiresAt) {
			c.unlink(n)
			c.pushFront(n)
			c.hits++
			return true
		}
		c.remove(n)
	}

	n := &lruNode{key: key, seenAt: now, expiresAt: now.Add(c.ttl)}
	c.pushFront(n)
	c.items[key] = n
	for len(c.items) > c.capacity {
		c.remove(c.tail.prev)
	}
	c.misses++
	return false
}

// SeenAt returns when key was first recorded, if it is still live.
func (c *LRU) SeenAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[key]
	if !ok || c.now().After(n.expiresAt) {
		return time.Time{}, false
	}
	return n.seenAt, true
}

// Forget removes key so a later Seen records it again.
func (c *LRU) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[key]
	if ok {
		c.remove(n)
	}
	return ok
}

// Len returns the current number of keys.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Prune removes expired keys, oldest first, and returns how many went.
func (c *LRU) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for n := c.tail.prev; n != c.head; {
		prev := n.prev
		if now.After(n.expiresAt) {
			c.remove(n)
			removed++
		}
		n = prev
	}
	return removed
}

// Stats returns hit/miss counters and the current size.
func (c *LRU) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// list helpers, called with mu held

func (c *LRU) pushFront(n *lruNode) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU) unlink(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *LRU) remove(n *lruNode) {
	if n == c.head || n == c.tail {
		return
	}
	c.unlink(n)
	delete(c.items, n.key)
}
