// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package dispatch turns record changes into sync tasks. It is registered as
// a store hook; nothing here talks to the registry except the synchronous
// edge delete of a replaced relationship.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/syncer"
	"github.com/tomtom215/regsync/internal/typeregistry"
)

// Action is what a save means for one relationship edge.
type Action string

const (
	ActionPush    Action = "push"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
	ActionIgnore  Action = "ignore"
)

// EdgeDeleter removes an edge right away. *syncer.Syncer implements it.
type EdgeDeleter interface {
	DeleteRelationship(ctx context.Context, rel *binding.Relationship, rec *models.Record) error
}

// MetaWriter clears remote ids. *store.Store implements it.
type MetaWriter interface {
	UpdateMeta(ctx context.Context, kind, id string, meta map[string]string) error
}

// Dispatcher enqueues the tasks a record change calls for.
type Dispatcher struct {
	bindings *binding.Registry
	queue    syncer.Enqueuer
	edges    EdgeDeleter
	records  MetaWriter
	action   syncer.ErrorAction
	logger   zerolog.Logger
}

// New creates a Dispatcher.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(bindings *binding.Registry, queue syncer.Enqueuer, edges EdgeDeleter, records MetaWriter, action syncer.ErrorAction, logger zerolog.Logger) *Dispatcher {
	if action == "" {
		action = syncer.ActionLog
	}
	return &Dispatcher{
		bindings: bindings,
		queue:    queue,
		edges:    edges,
		records:  records,
		action:   action,
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// RelationshipAction derives the edge action from the primary link and then
// the related link. The related end falls back to the remote foreign key when
// it has no local record. The first link that decides wins.
func RelationshipAction(ch models.Change, rel *binding.Relationship) Action {
	for _, l := range linkValues(ch, rel) {
		changed := l.prev != l.cur
		switch {
		case changed && l.cur == "":
			return ActionDelete
		case changed && l.prev != "":
			return ActionReplace
		case !changed && l.cur == "":
			return ActionIgnore
		}
	}
	return ActionPush
}

type linkValue struct {
	prev, cur string
}

// linkValues lists the foreign key links of rel in evaluation order. A primary
// that is the record itself has no link.
func linkValues(ch models.Change, rel *binding.Relationship) []linkValue {
	out := make([]linkValue, 0, 2)
	if !rel.PrimaryIsSelf() {
		p, c, _ := ch.LinkChanged(rel.Primary.Link)
		out = append(out, linkValue{prev: refString(p), cur: refString(c)})
	}
	if rel.RemoteRelated() {
		v := linkValue{cur: typeregistry.RemoteForeignKey(ch.Record, rel.RelatedRemoteIDColumn)}
		if ch.Previous != nil {
			v.prev = typeregistry.RemoteForeignKey(ch.Previous, rel.RelatedRemoteIDColumn)
		}
		return append(out, v)
	}
	p, c, _ := ch.LinkChanged(rel.Related.Link)
	return append(out, linkValue{prev: refString(p), cur: refString(c)})
}

func refString(r models.Ref) string {
	if r.IsZero() {
		return ""
	}
	return r.Kind + ":" + r.ID
}

// OnChange is the store hook.
func (d *Dispatcher) OnChange(ctx context.Context, ch models.Change) error {
	if ch.Record == nil {
		return nil
	}
	b, err := d.bindings.Get(ch.Record.Kind)
	if errors.Is(err, binding.ErrUnknownKind) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	if ch.Event == models.EventDelete {
		errs = d.deleted(ctx, b, ch.Record)
	} else {
		errs = d.saved(ctx, b, ch)
	}
	return d.report(ch.Record, errs)
}

// Push enqueues an entity push and every relationship push for rec,
// regardless of PushOn. Conditions still apply.
func (d *Dispatcher) Push(ctx context.Context, rec *models.Record) error {
	b, err := d.bindings.Get(rec.Kind)
	if err != nil {
		return err
	}
	var errs []error
	if b.Entity != nil && b.Entity.Allowed(rec) {
		errs = appendErr(errs, d.enqueue(ctx, models.PushEntityTask(rec.Kind, rec.ID)))
	}
	for i := range b.Relationships {
		rel := &b.Relationships[i]
		if rel.Allowed(rec) {
			errs = appendErr(errs, d.enqueue(ctx, models.PushRelationshipTask(rec.Kind, rec.ID, rel.Name)))
		}
	}
	return d.report(rec, errs)
}

func (d *Dispatcher) saved(ctx context.Context, b *binding.Binding, ch models.Change) []error {
	rec := ch.Record
	var errs []error
	if e := b.Entity; e != nil && e.PushesOn(ch.Event) {
		if e.Allowed(rec) {
			errs = appendErr(errs, d.enqueue(ctx, models.PushEntityTask(rec.Kind, rec.ID)))
		} else {
			d.logger.Debug().Str("kind", rec.Kind).Str("id", rec.ID).Msg("entity push suppressed by condition")
		}
	}

	for i := range b.Relationships {
		rel := &b.Relationships[i]
		action := RelationshipAction(ch, rel)
		d.logger.Debug().Str("kind", rec.Kind).Str("id", rec.ID).Str("relationship", rel.Name).
			Str("action", string(action)).Msg("relationship change")

		switch action {
		case ActionDelete:
			errs = appendErr(errs, d.dropEdge(ctx, rel, rec))
		case ActionReplace:
			if err := d.edges.DeleteRelationship(ctx, rel, rec); err != nil {
				errs = append(errs, fmt.Errorf("replace %s(%s).%s: %w", rec.Kind, rec.ID, rel.Name, err))
				continue
			}
			errs = appendErr(errs, d.pushRelationship(ctx, rel, rec))
		case ActionPush:
			errs = appendErr(errs, d.pushRelationship(ctx, rel, rec))
		}
	}
	return errs
}

func (d *Dispatcher) deleted(ctx context.Context, b *binding.Binding, rec *models.Record) []error {
	var errs []error
	if e := b.Entity; e != nil && e.PushesOn(models.EventDelete) {
		if remoteID := rec.MetaValue(e.IDColumn); remoteID != "" {
			errs = appendErr(errs, d.enqueue(ctx, models.DeleteEntityTask(remoteID)))
		}
	}
	for i := range b.Relationships {
		if edgeID := rec.MetaValue(b.Relationships[i].IDColumn); edgeID != "" {
			errs = appendErr(errs, d.enqueue(ctx, models.DeleteEntityTask(edgeID)))
		}
	}
	return errs
}

func (d *Dispatcher) pushRelationship(ctx context.Context, rel *binding.Relationship, rec *models.Record) error {
	if !rel.Allowed(rec) {
		return nil
	}
	return d.enqueue(ctx, models.PushRelationshipTask(rec.Kind, rec.ID, rel.Name))
}

// dropEdge enqueues the edge delete and clears the id so a later push
// creates a fresh edge.
func (d *Dispatcher) dropEdge(ctx context.Context, rel *binding.Relationship, rec *models.Record) error {
	edgeID := rec.MetaValue(rel.IDColumn)
	if edgeID == "" {
		return nil
	}
	if err := d.enqueue(ctx, models.DeleteEntityTask(edgeID)); err != nil {
		return err
	}
	if err := d.records.UpdateMeta(ctx, rec.Kind, rec.ID, map[string]string{rel.IDColumn: ""}); err != nil {
		return fmt.Errorf("clear %s: %w", rel.IDColumn, err)
	}
	rec.SetMeta(rel.IDColumn, "")
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, task models.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", task, err)
	}
	return nil
}

// report applies the error action to errs.
func (d *Dispatcher) report(rec *models.Record, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		metrics.DispatchErrors.WithLabelValues(string(d.action)).Inc()
		if d.action == syncer.ActionLog {
			d.logger.Error().Err(err).Str("kind", rec.Kind).Str("id", rec.ID).
				Bool("transport", errors.Is(err, registry.ErrTransport)).Msg("dispatch failed")
		}
	}
	if d.action == syncer.ActionRaise {
		return errors.Join(errs...)
	}
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
