// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package main is the entry point for the regsync daemon.
//
// regsync mirrors application records into a remote global registry. The
// application writes records through the local store (directly or through
// the HTTP API); change hooks turn every save and delete into sync tasks,
// and the task queue runs them against the registry with retries.
//
// # Startup Order
//
//  1. Configuration: defaults, config file, environment (Koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Store: BadgerDB record store
//  4. Registry: HTTP client with rate limiter and circuit breaker
//  5. Type registry and synchronizers
//  6. Task queue: watermill router on gochannel or NATS JetStream
//  7. Dispatcher: registered as the store change hook
//  8. Supervisor tree: store GC, task queue, HTTP API
//
// # Build Tags
//
//	go build ./cmd/regsync               # in-process gochannel queue
//	go build -tags nats ./cmd/regsync    # adds the NATS JetStream backend
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The queue router drains its
// in-flight handlers within close_timeout and the HTTP server shuts down
// within server.shutdown_timeout.
package main

import (
	"os"

	"github.com/tomtom215/regsync/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("regsync failed")
		os.Exit(1)
	}
}
