// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"
)

// QueueRunner is the lifecycle of *queue.Queue.
type QueueRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// QueueService runs the task router until the tree stops.
//
// A Watermill router cannot be started twice, so a router that exits on its
// own is reported with suture.ErrDoNotRestart instead of being restarted.
type QueueService struct {
	queue QueueRunner
}

// NewQueueService wraps q.
func NewQueueService(q QueueRunner) *QueueService {
	return &QueueService{queue: q}
}

// Serve implements suture.Service.
func (s *QueueService) Serve(ctx context.Context) error {
	err := s.queue.Run(ctx)
	closeErr := s.queue.Close()

	if ctx.Err() != nil {
		if closeErr != nil {
			return fmt.Errorf("close queue: %w", closeErr)
		}
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("router stopped")
	}
	return fmt.Errorf("%w: task router: %w", suture.ErrDoNotRestart, errors.Join(err, closeErr))
}

func (s *QueueService) String() string {
	return "task-queue"
}
