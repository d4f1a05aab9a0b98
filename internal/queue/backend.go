// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/regsync/internal/config"
)

// Backend is the pub/sub pair the queue runs on.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Close releases the backend in reverse order of construction.
func (b Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewGoChannel returns an in-process backend. Messages do not survive a restart.
func NewGoChannel(logger watermill.LoggerAdapter) Backend {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 1024,
	}, logger)
	return Backend{
		Publisher:  pubsub,
		Subscriber: pubsub,
		closers:    []func() error{pubsub.Close},
	}
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.QueueConfig, logger watermill.LoggerAdapter) (Backend, error) {
	switch cfg.Backend {
	case "", "gochannel":
		return NewGoChannel(logger), nil
	case "nats":
		return NewNATS(ctx, cfg, logger)
	default:
		return Backend{}, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
