// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGC struct {
	runs atomic.Int32
	err  error
}

func (f *fakeGC) CollectGarbage() error {
	f.runs.Add(1)
	return f.err
}

func TestStoreGCServiceRunsOnInterval(t *testing.T) {
	t.Parallel()
	gc := &fakeGC{err: errors.New("rewrite failed")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewStoreGCService(gc, 5*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for gc.runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("gc ran %d times, want at least 3", gc.runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestNewStoreGCServiceDefaults(t *testing.T) {
	t.Parallel()
	svc := NewStoreGCService(&fakeGC{}, 0, nil)
	if svc.interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", svc.interval)
	}
	if svc.logger == nil {
		t.Error("logger is nil")
	}
}
