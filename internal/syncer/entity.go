// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/fingerprint"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
)

// PushEntity creates or updates the registry entity for a record.
func (s *Syncer) PushEntity(ctx context.Context, kind, id string) (Result, error) {
	e, err := s.bindings.Entity(kind)
	if err != nil {
		return fatal(err), nil
	}
	rec, ok, err := s.load(ctx, kind, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped("record deleted"), nil
	}
	log := s.logger(ctx).With().Str("kind", kind).Str("id", id).Logger()

	var parent *models.Record
	if e.HasParent() {
		if link := rec.Link(e.Parent); !link.IsZero() {
			if parent, _, err = s.load(ctx, e.ParentKind, link.ID); err != nil {
				return Result{}, err
			}
		}
	}
	if e.ParentRequired() && parent == nil {
		log.Debug().Str("parent", e.Parent).Msg("required parent absent, nothing to push")
		return skipped("parent absent"), nil
	}

	parentRemoteID := ""
	if e.ParentIsSelf() && parent != nil {
		parentRemoteID = parent.MetaValue(e.IDColumn)
	}
	attrs := e.EntityAttributes(rec, parentRemoteID)

	if e.FingerprintColumn != "" && !fingerprint.Changed(rec, e.IDColumn, e.FingerprintColumn, attrs) {
		log.Debug().Msg("fingerprint unchanged, nothing to push")
		return skipped("unchanged"), nil
	}

	if _, err := s.types.EnsureEntityType(ctx, e, rec); err != nil {
		return typeFailure(err)
	}

	var (
		res      Result
		remoteID string
	)
	switch {
	case e.ParentRequired():
		res, remoteID, err = s.dependentCreate(ctx, e, rec, parent, attrs)
	default:
		res, remoteID, err = s.upsert(ctx, e, rec, parent, attrs)
	}
	if err != nil || res.Outcome != OutcomePushed {
		return res, err
	}

	meta := map[string]string{e.IDColumn: remoteID}
	if e.FingerprintColumn != "" {
		fp, err := fingerprint.Fingerprint(attrs)
		if err != nil {
			return Result{}, err
		}
		meta[e.FingerprintColumn] = fp
	}
	if err := s.setMeta(ctx, rec, meta); err != nil {
		return Result{}, err
	}

	if e.MDMIDColumn != "" {
		s.enqueue(ctx, models.PullMDMIDTask(kind, id))
	}
	return res, nil
}

// upsert updates the entity when it has a remote id and creates it otherwise.
// A 404 on update means the remote entity is gone: the id is cleared and the
// entity created once.
func (s *Syncer) upsert(ctx context.Context, e *binding.Entity, rec, parent *models.Record, attrs map[string]any) (Result, string, error) {
	typeName := e.TypeName(rec)
	log := s.logger(ctx).With().Str("kind", rec.Kind).Str("id", rec.ID).Str("type", typeName).Logger()

	if remoteID := rec.MetaValue(e.IDColumn); remoteID != "" {
		body := registry.Document{"entity": map[string]any{typeName: attrs}}
		_, err := s.client.UpdateEntity(ctx, remoteID, body, nil)
		switch {
		case err == nil:
			metrics.RecordRemoteWrite("entity_update")
			log.Info().Str("remote_id", remoteID).Msg("entity updated")
			return pushed("updated"), remoteID, nil
		case errors.Is(err, registry.ErrNotFound):
			metrics.StaleReferences.Inc()
			log.Warn().Str("remote_id", remoteID).Msg("remote entity gone, recreating")
			if err := s.setMeta(ctx, rec, map[string]string{e.IDColumn: ""}); err != nil {
				return Result{}, "", err
			}
		default:
			return Result{}, "", fmt.Errorf("update %s entity %s: %w", typeName, remoteID, err)
		}
	}

	if e.ParentIsSelf() && parent != nil && parent.MetaValue(e.IDColumn) == "" {
		t := models.PushEntityTask(parent.Kind, parent.ID)
		s.enqueue(ctx, t)
		return retry(fmt.Errorf("%w: %s", ErrParentMissingRemoteID, t), t), "", nil
	}

	body := registry.Document{"entity": map[string]any{typeName: attrs}}
	resp, err := s.client.CreateEntity(ctx, body)
	if err != nil {
		return Result{}, "", fmt.Errorf("create %s entity: %w", typeName, err)
	}
	remoteID := resp.String("entity", typeName, "id")
	if remoteID == "" {
		return Result{}, "", fmt.Errorf("%w: create %s returned no id", ErrUnexpectedResponse, typeName)
	}
	metrics.RecordRemoteWrite("entity_create")
	log.Info().Str("remote_id", remoteID).Msg("entity created")
	return pushed("created"), remoteID, nil
}

// dependentCreate pushes a record nested under its parent entity. The
// registry upserts the child by client_integration_id, so the same request
// serves create and update.
func (s *Syncer) dependentCreate(ctx context.Context, e *binding.Entity, rec, parent *models.Record, attrs map[string]any) (Result, string, error) {
	parentEntity, err := s.bindings.Entity(e.ParentKind)
	if err != nil {
		return fatal(err), "", nil
	}

	parentRemoteID := parent.MetaValue(parentEntity.IDColumn)
	if parentRemoteID == "" {
		t := models.PushEntityTask(parent.Kind, parent.ID)
		s.enqueue(ctx, t)
		return retry(fmt.Errorf("%w: %s", ErrParentMissingRemoteID, t), t), "", nil
	}

	typeName := e.TypeName(rec)
	parentType := parentEntity.TypeName(parent)
	body := registry.Document{"entity": map[string]any{
		parentType: map[string]any{
			binding.AttrClientIntegrationID: parent.ID,
			typeName:                        attrs,
		},
	}}

	resp, err := s.client.UpdateEntity(ctx, parentRemoteID, body, nil)
	if errors.Is(err, registry.ErrNotFound) {
		// The parent's remote id is stale. Push the parent again first.
		metrics.StaleReferences.Inc()
		if err := s.setMeta(ctx, parent, map[string]string{parentEntity.IDColumn: ""}); err != nil {
			return Result{}, "", err
		}
		t := models.PushEntityTask(parent.Kind, parent.ID)
		s.enqueue(ctx, t)
		return retry(fmt.Errorf("%w: %s was gone", ErrParentMissingRemoteID, t), t), "", nil
	}
	if err != nil {
		return Result{}, "", fmt.Errorf("push %s under %s %s: %w", typeName, parentType, parentRemoteID, err)
	}

	for _, child := range resp.List("entity", parentType, typeName) {
		if child.String(binding.AttrClientIntegrationID) == rec.ID {
			remoteID := child.String("id")
			if remoteID == "" {
				break
			}
			metrics.RecordRemoteWrite("dependent_upsert")
			s.logger(ctx).Info().Str("kind", rec.Kind).Str("id", rec.ID).Str("remote_id", remoteID).
				Str("parent_remote_id", parentRemoteID).Msg("dependent entity pushed")
			return pushed("dependent"), remoteID, nil
		}
	}
	return Result{}, "", fmt.Errorf("%w: %s(%s) missing from %s response", ErrUnexpectedResponse, rec.Kind, rec.ID, parentType)
}

// DeleteEntity deletes a remote entity or edge. A 404 counts as deleted.
func (s *Syncer) DeleteEntity(ctx context.Context, remoteID string) (Result, error) {
	if remoteID == "" {
		return skipped("no remote id"), nil
	}
	err := s.client.DeleteEntity(ctx, remoteID)
	switch {
	case err == nil:
		metrics.RecordRemoteWrite("entity_delete")
		s.logger(ctx).Info().Str("remote_id", remoteID).Msg("entity deleted")
		return pushed("deleted"), nil
	case errors.Is(err, registry.ErrNotFound):
		return skipped("already gone"), nil
	default:
		return Result{}, fmt.Errorf("delete entity %s: %w", remoteID, err)
	}
}
