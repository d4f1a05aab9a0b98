// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type fakeQueue struct {
	runErr   error
	closeErr error
	block    bool
	closes   atomic.Int32
}

func (f *fakeQueue) Run(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return nil
	}
	return f.runErr
}

func (f *fakeQueue) Close() error {
	f.closes.Add(1)
	return f.closeErr
}

func TestQueueServiceStopsWithContext(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{block: true}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewQueueService(q).Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if q.closes.Load() != 1 {
		t.Errorf("Close called %d times, want 1", q.closes.Load())
	}
}

func TestQueueServiceCloseErrorOnShutdown(t *testing.T) {
	t.Parallel()
	closeErr := errors.New("flush failed")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewQueueService(&fakeQueue{block: true, closeErr: closeErr}).Serve(ctx)
	if !errors.Is(err, closeErr) {
		t.Errorf("Serve() = %v, want %v", err, closeErr)
	}
}

func TestQueueServiceDoesNotRestart(t *testing.T) {
	t.Parallel()
	runErr := errors.New("subscribe failed")
	err := NewQueueService(&fakeQueue{runErr: runErr}).Serve(context.Background())
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve() = %v, want ErrDoNotRestart", err)
	}
	if !errors.Is(err, runErr) {
		t.Errorf("Serve() = %v, want wrapped %v", err, runErr)
	}

	if err := NewQueueService(&fakeQueue{}).Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("clean exit Serve() = %v, want ErrDoNotRestart", err)
	}
}
