// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package services

import (
	"context"
	"log/slog"
	"time"
)

// GarbageCollector reclaims store space. *store.Store implements it.
type GarbageCollector interface {
	CollectGarbage() error
}

// StoreGCService runs value log garbage collection on an interval.
// Failures are logged; the next tick tries again.
type StoreGCService struct {
	store    GarbageCollector
	interval time.Duration
	logger   *slog.Logger
}

// NewStoreGCService creates the service. A non-positive interval means 10m.
func NewStoreGCService(store GarbageCollector, interval time.Duration, logger *slog.Logger) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreGCService{store: store, interval: interval, logger: logger}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.CollectGarbage(); err != nil {
				s.logger.Warn("store garbage collection failed", "error", err)
			}
		}
	}
}

func (s *StoreGCService) String() string {
	return "store-gc"
}
