// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/typeregistry"
)

// PushRelationship creates or updates the edge the named relationship of a
// record describes.
func (s *Syncer) PushRelationship(ctx context.Context, kind, id, name string) (Result, error) {
	rel, err := s.bindings.Relationship(kind, name)
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
	log := s.logger(ctx).With().Str("kind", kind).Str("id", id).Str("relationship", name).Logger()

	eps, err := s.types.ResolveEndpoints(ctx, rel, rec)
	if err != nil {
		return fatal(err), nil
	}

	edgeID := rec.MetaValue(rel.IDColumn)
	for _, side := range []struct {
		name string
		ep   typeregistry.Endpoint
	}{{"primary", eps.Primary}, {"related", eps.Related}} {
		if side.ep.Attached() {
			continue
		}
		if edgeID == "" {
			log.Debug().Msgf("%s endpoint absent, nothing to push", side.name)
			return skipped(side.name + " absent"), nil
		}
		// An endpoint link was cleared: remove the edge and stop.
		if err := s.DeleteRelationship(ctx, rel, rec); err != nil {
			return Result{}, err
		}
		return pushed("edge removed"), nil
	}

	if res, waiting := s.ensureRelated(ctx, eps); waiting {
		return res, nil
	}

	if _, err := s.types.EnsureRelationshipTypeFor(ctx, rel, rec, eps); err != nil {
		return typeFailure(err)
	}

	attrs := rel.EdgeAttributes(rec)
	if edgeID != "" {
		_, err := s.client.UpdateEntity(ctx, edgeID, registry.Document{"entity": attrs}, nil)
		switch {
		case err == nil:
			metrics.RecordRemoteWrite("edge_update")
			log.Info().Str("edge_id", edgeID).Msg("relationship edge updated")
			return pushed("updated"), nil
		case errors.Is(err, registry.ErrNotFound):
			metrics.StaleReferences.Inc()
			log.Warn().Str("edge_id", edgeID).Msg("remote edge gone, recreating")
			if err := s.setMeta(ctx, rec, map[string]string{rel.IDColumn: ""}); err != nil {
				return Result{}, err
			}
		default:
			return Result{}, fmt.Errorf("update edge %s: %w", edgeID, err)
		}
	}

	return s.createEdge(ctx, rel, rec, eps, attrs)
}

// ensureRelated enqueues every endpoint that has not been pushed yet.
func (s *Syncer) ensureRelated(ctx context.Context, eps typeregistry.Endpoints) (Result, bool) {
	var missing []models.Task
	for _, ep := range []typeregistry.Endpoint{eps.Primary, eps.Related} {
		if ep.Remote || ep.RemoteID != "" {
			continue
		}
		missing = append(missing, ep.Task())
	}
	if len(missing) == 0 {
		return Result{}, false
	}
	s.enqueue(ctx, missing...)
	return retry(fmt.Errorf("%w: %s", ErrRelatedMissingRemoteID, describe(missing)), missing...), true
}

func (s *Syncer) createEdge(
	ctx context.Context,
	rel *binding.Relationship,
	rec *models.Record,
	eps typeregistry.Endpoints,
	attrs map[string]any,
) (Result, error) {
	field := eps.Related.Role + ":relationship"
	edge := maps.Clone(attrs)
	edge[eps.Related.TypeName] = eps.Related.RemoteID

	body := registry.Document{"entity": map[string]any{
		eps.Primary.TypeName: map[string]any{
			field:                           edge,
			binding.AttrClientIntegrationID: eps.Primary.Record.ID,
		},
	}}
	query := url.Values{}
	query.Set("full_response", "true")
	query.Set("fields", field)

	log := s.logger(ctx).With().Str("kind", rec.Kind).Str("id", rec.ID).Str("relationship", rel.Name).Logger()

	resp, err := s.client.UpdateEntity(ctx, eps.Primary.RemoteID, body, query)
	if errors.Is(err, registry.ErrConflict) {
		return s.recoverConflict(ctx, rel, rec, eps)
	}
	if err != nil {
		return Result{}, fmt.Errorf("create edge %s on %s: %w", field, eps.Primary.RemoteID, err)
	}

	cid := rel.IntegrationID(rec)
	edgeID := findEdge(resp.List("entity", eps.Primary.TypeName, field), cid)
	if edgeID == "" {
		return Result{}, fmt.Errorf("%w: edge %s with client_integration_id %s missing from response",
			ErrUnexpectedResponse, field, cid)
	}
	if err := s.setMeta(ctx, rec, map[string]string{rel.IDColumn: edgeID}); err != nil {
		return Result{}, err
	}
	metrics.RecordRemoteWrite("edge_create")
	log.Info().Str("edge_id", edgeID).Str("primary", eps.Primary.RemoteID).
		Str("related", eps.Related.RemoteID).Msg("relationship edge created")

	// The creating request drops the relationship entity type's own fields,
	// so they are sent again on the new edge.
	if _, err := s.client.UpdateEntity(ctx, edgeID, registry.Document{"entity": attrs}, nil); err != nil {
		return Result{}, fmt.Errorf("update new edge %s: %w", edgeID, err)
	}
	metrics.RecordRemoteWrite("edge_update")
	return pushed("created"), nil
}

// recoverConflict handles an edge the registry already holds under the same
// client integration id. The old edge is deleted instead of overwritten and
// the task retried, so the next attempt creates a fresh edge.
func (s *Syncer) recoverConflict(ctx context.Context, rel *binding.Relationship, rec *models.Record, eps typeregistry.Endpoints) (Result, error) {
	field := eps.Related.Role + ":relationship"
	cid := rel.IntegrationID(rec)

	existing := rec.MetaValue(rel.IDColumn)
	if existing == "" {
		query := url.Values{}
		query.Set("fields", field)
		doc, err := s.client.GetEntity(ctx, eps.Primary.RemoteID, query)
		if err != nil && !errors.Is(err, registry.ErrNotFound) {
			return Result{}, fmt.Errorf("look up existing edge: %w", err)
		}
		existing = findEdge(doc.List("entity", eps.Primary.TypeName, field), cid)
	}

	if existing != "" {
		if err := s.client.DeleteEntity(ctx, existing); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return Result{}, fmt.Errorf("delete existing edge %s: %w", existing, err)
		}
		metrics.RecordRemoteWrite("edge_delete")
	}
	if err := s.setMeta(ctx, rec, map[string]string{rel.IDColumn: ""}); err != nil {
		return Result{}, err
	}

	s.logger(ctx).Warn().Str("kind", rec.Kind).Str("id", rec.ID).Str("relationship", rel.Name).
		Str("client_integration_id", cid).Str("deleted_edge_id", existing).
		Msg("edge already existed, deleted it and will retry")
	return retry(fmt.Errorf("%w: %s", ErrEdgeExisted, cid)), nil
}

// DeleteRelationship deletes the edge on file for rel and clears its id.
func (s *Syncer) DeleteRelationship(ctx context.Context, rel *binding.Relationship, rec *models.Record) error {
	edgeID := rec.MetaValue(rel.IDColumn)
	if edgeID == "" {
		return nil
	}
	if err := s.client.DeleteEntity(ctx, edgeID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("delete edge %s: %w", edgeID, err)
	}
	metrics.RecordRemoteWrite("edge_delete")
	s.logger(ctx).Info().Str("kind", rec.Kind).Str("id", rec.ID).Str("relationship", rel.Name).
		Str("edge_id", edgeID).Msg("relationship edge deleted")
	return s.setMeta(ctx, rec, map[string]string{rel.IDColumn: ""})
}

// findEdge returns the relationship_entity_id of the edge with the given
// client integration id. The registry may return the id as a bare string or
// as an owned {value: ...} object.
func findEdge(edges []registry.Document, cid string) string {
	for _, e := range edges {
		if e.String(binding.AttrClientIntegrationID) == cid {
			return e.String("relationship_entity_id")
		}
	}
	return ""
}
