// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

//go:build nats

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/regsync/internal/models"
)

func TestNATSBackendRunsTask(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "nats"
	cfg.Topic = "regsync.test.tasks"
	cfg.DeadLetterTopic = "regsync.test.dead"
	cfg.NATS.Embedded = true
	cfg.NATS.Host = "127.0.0.1"
	cfg.NATS.Port = -1
	cfg.NATS.StoreDir = t.TempDir()
	cfg.NATS.Stream = "REGSYNC_TEST"
	cfg.NATS.DurableName = "regsync-test"
	cfg.NATS.QueueGroup = "regsync-test"
	cfg.NATS.SubscribersCount = 1
	cfg.NATS.AckWait = 5 * time.Second
	cfg.NATS.MaxReconnects = 1
	cfg.NATS.ReconnectWait = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := Open(ctx, cfg, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	runner := newFakeRunner(nil)
	q, err := New(Options{Config: cfg}, backend, runner)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	go func() { _ = q.Run(ctx) }()
	defer func() { _ = q.Close() }()
	<-q.Running()

	task := models.PushEntityTask("person", "1")
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case got := <-runner.ran:
		if got != task {
			t.Errorf("ran %+v, want %+v", got, task)
		}
	case <-ctx.Done():
		t.Fatal("task never ran over JetStream")
	}
}
