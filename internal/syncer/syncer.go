// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package syncer pushes local records to the registry as entities and
// relationship edges.
//
// A synchronizer never waits for a prerequisite. When a parent or endpoint
// has no remote id yet it enqueues that record and returns a Retry result;
// the queue re-delivers the task later with backoff.
//
// Run returns a Result for every protocol outcome and a non-nil error only
// for transport failures, which the queue handles by policy.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/store"
	"github.com/tomtom215/regsync/internal/typeregistry"
)

// Sentinel errors carried by Retry and Fatal results.
var (
	ErrParentMissingRemoteID  = errors.New("parent has no remote id")
	ErrRelatedMissingRemoteID = errors.New("related record has no remote id")
	ErrRecordMissingRemoteID  = errors.New("record has no remote id")
	ErrEntityMissingMDMID     = errors.New("entity has no mdm id yet")
	ErrEdgeExisted            = errors.New("relationship edge already existed")

	// ErrUnexpectedResponse is a 2xx response that lacks the expected ids.
	ErrUnexpectedResponse = errors.New("unexpected registry response")
	ErrUnknownOp          = errors.New("unknown task op")
)

// Enqueuer schedules tasks. Enqueue must not block on task execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, task models.Task) error
}

// Store is the record access the synchronizers need. *store.Store implements it.
type Store interface {
	Get(ctx context.Context, kind, id string) (*models.Record, error)
	UpdateMeta(ctx context.Context, kind, id string, meta map[string]string) error
}

// Syncer runs sync tasks against the registry.
type Syncer struct {
	client   registry.Registry
	types    *typeregistry.Registry
	bindings *binding.Registry
	records  Store
	queue    Enqueuer
}

// New creates a Syncer.
func New(client registry.Registry, types *typeregistry.Registry, bindings *binding.Registry, records Store, queue Enqueuer) *Syncer {
	return &Syncer{
		client:   client,
		types:    types,
		bindings: bindings,
		records:  records,
		queue:    queue,
	}
}

// SetEnqueuer replaces the queue. The queue and the synchronizers reference
// each other, so one of them is wired after construction.
func (s *Syncer) SetEnqueuer(q Enqueuer) {
	s.queue = q
}

// Run executes one task.
func (s *Syncer) Run(ctx context.Context, task models.Task) (Result, error) {
	start := time.Now()
	var (
		res Result
		err error
	)
	switch task.Op {
	case models.OpPushEntity:
		res, err = s.PushEntity(ctx, task.Kind, task.ID)
	case models.OpPushRelationship:
		res, err = s.PushRelationship(ctx, task.Kind, task.ID, task.Relationship)
	case models.OpDeleteEntity:
		res, err = s.DeleteEntity(ctx, task.RemoteID)
	case models.OpPullMDMID:
		res, err = s.PullMDMID(ctx, task.Kind, task.ID)
	default:
		res = fatal(fmt.Errorf("%w: %q", ErrUnknownOp, task.Op))
	}

	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	metrics.RecordSyncTask(string(task.Op), task.Kind, outcome, time.Since(start))

	log := s.logger(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("task", task.String()).Msg("sync task failed")
	case res.Outcome == OutcomeRetry:
		log.Warn().Str("task", task.String()).Str("reason", res.Reason).
			Int("enqueued", len(res.Enqueued)).Msg("sync task waiting on prerequisites")
	case res.Outcome == OutcomeFatal:
		log.Error().Err(res.Err).Str("task", task.String()).Msg("sync task cannot succeed")
	default:
		log.Debug().Str("task", task.String()).Str("result", res.String()).Msg("sync task done")
	}
	return res, err
}

// enqueue schedules prerequisites. Failures are logged only: the task that
// needed them is retried and will enqueue them again.
func (s *Syncer) enqueue(ctx context.Context, tasks ...models.Task) {
	if s.queue == nil {
		return
	}
	for _, t := range tasks {
		if err := s.queue.Enqueue(ctx, t); err != nil {
			s.logger(ctx).Warn().Err(err).Str("task", t.String()).Msg("could not enqueue prerequisite")
		}
	}
}

func (s *Syncer) load(ctx context.Context, kind, id string) (*models.Record, bool, error) {
	rec, err := s.records.Get(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s(%s): %w", kind, id, err)
	}
	return rec, true, nil
}

func (s *Syncer) setMeta(ctx context.Context, rec *models.Record, meta map[string]string) error {
	if err := s.records.UpdateMeta(ctx, rec.Kind, rec.ID, meta); err != nil {
		return err
	}
	for column, value := range meta {
		rec.SetMeta(column, value)
	}
	return nil
}

func (s *Syncer) logger(ctx context.Context) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("component", "syncer").Logger()
	return &l
}

// typeFailure turns a missing remote type into a Fatal result.
func typeFailure(err error) (Result, error) {
	if errors.Is(err, typeregistry.ErrRelatedTypeMissing) || errors.Is(err, typeregistry.ErrPrimaryTypeMissing) {
		return fatal(err), nil
	}
	return Result{}, err
}

func describe(tasks []models.Task) string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
