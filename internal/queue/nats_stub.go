// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

//go:build !nats

package queue

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/regsync/internal/config"
)

// ErrNATSNotCompiled is returned when the nats backend is selected in a
// binary built without the nats tag.
var ErrNATSNotCompiled = errors.New("nats backend not compiled in (build with -tags nats)")

// NewNATS is a stub for non-NATS builds.
func NewNATS(_ context.Context, _ config.QueueConfig, _ watermill.LoggerAdapter) (Backend, error) {
	return Backend{}, ErrNATSNotCompiled
}
