// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package typeregistry

import (
	"context"
	"fmt"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/cache"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
)

// EnsureRelationshipType returns the relationship type backing rel for rec,
// creating it and its missing fields first. It returns nil when EnsureType
// is off.
func (r *Registry) EnsureRelationshipType(ctx context.Context, rel *binding.Relationship, rec *models.Record) (*registry.RelationshipType, error) {
	if !rel.EnsureType {
		return nil, nil
	}
	eps, err := r.ResolveEndpoints(ctx, rel, rec)
	if err != nil {
		return nil, err
	}
	return r.EnsureRelationshipTypeFor(ctx, rel, rec, eps)
}

// EnsureRelationshipTypeFor is EnsureRelationshipType with endpoints the
// caller has already resolved.
func (r *Registry) EnsureRelationshipTypeFor(ctx context.Context, rel *binding.Relationship, rec *models.Record, eps Endpoints) (*registry.RelationshipType, error) {
	if !rel.EnsureType {
		return nil, nil
	}

	primaryTypeID, err := r.endpointTypeID(ctx, eps.Primary)
	if err != nil {
		return nil, err
	}
	if primaryTypeID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPrimaryTypeMissing, eps.Primary.TypeName)
	}
	relatedTypeID, err := r.endpointTypeID(ctx, eps.Related)
	if err != nil {
		return nil, err
	}
	if relatedTypeID == "" {
		return nil, fmt.Errorf("%w: %s", ErrRelatedTypeMissing, eps.Related.TypeName)
	}

	key := cache.Key("relationship_type", eps.Primary.TypeName, eps.Related.TypeName, eps.Primary.Role)
	typ, hit := r.relTypes.Get(key)
	metrics.RecordTypeCache("relationship", hit)
	if !hit {
		typ, err = r.findOrCreateRelationshipType(ctx, rel, rec, eps, primaryTypeID, relatedTypeID)
		if err != nil {
			return nil, err
		}
	}

	typ, err = r.ensureRelationshipFields(ctx, typ, rel.Columns(rec))
	if err != nil {
		return nil, err
	}
	r.relTypes.Set(key, typ)
	return typ, nil
}

// endpointTypeID resolves the entity type id of one endpoint. Entity-bound
// endpoints with a loaded record are ensured; everything else is looked up by
// name only.
func (r *Registry) endpointTypeID(ctx context.Context, ep Endpoint) (string, error) {
	if !ep.Remote && ep.BoundToEntity() && ep.Record != nil {
		if e, err := r.bindings.Entity(ep.Kind); err == nil {
			typ, err := r.EnsureEntityType(ctx, e, ep.Record)
			if err != nil {
				return "", err
			}
			if typ != nil {
				return typ.ID, nil
			}
		}
	}

	typ, err := r.LookupEntityType(ctx, ep.TypeName)
	if err != nil {
		return "", err
	}
	if typ == nil {
		return "", nil
	}
	return typ.ID, nil
}

func (r *Registry) findOrCreateRelationshipType(
	ctx context.Context,
	rel *binding.Relationship,
	rec *models.Record,
	eps Endpoints,
	primaryTypeID, relatedTypeID string,
) (*registry.RelationshipType, error) {
	found, err := r.client.FindRelationshipTypes(ctx, primaryTypeID, relatedTypeID)
	if err != nil {
		return nil, fmt.Errorf("find relationship types: %w", err)
	}
	for i := range found {
		if found[i].Relationship1.RelationshipName == eps.Primary.Role {
			r.logger.Debug().Str("relationship", rel.Name).Str("relationship_type_id", found[i].ID).
				Msg("relationship type resolved")
			return &found[i], nil
		}
	}

	typ, err := r.client.CreateRelationshipType(ctx, registry.NewRelationshipType{
		EntityType1ID: primaryTypeID,
		EntityType2ID: relatedTypeID,
		Relationship1: eps.Primary.Role,
		Relationship2: eps.Related.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("create relationship type %s: %w", rel.Name, err)
	}
	metrics.RecordRemoteWrite("relationship_type")
	r.logger.Info().Str("relationship", rel.Name).Str("relationship_type_id", typ.ID).
		Str("primary", eps.Primary.Role).Str("related", eps.Related.Role).Msg("relationship type created")

	if rel.RenameEntityType && typ.RelationshipEntityTypeID != "" {
		name := rel.TypeName(rec)
		if err := r.client.RenameEntityType(ctx, typ.RelationshipEntityTypeID, name); err != nil {
			return nil, fmt.Errorf("rename relationship entity type to %s: %w", name, err)
		}
		metrics.RecordRemoteWrite("entity_type_rename")
	}
	return typ, nil
}

// ensureRelationshipFields adds every missing field in a single request.
func (r *Registry) ensureRelationshipFields(ctx context.Context, typ *registry.RelationshipType, columns map[string]models.FieldType) (*registry.RelationshipType, error) {
	missing := missingFields(columns, typ.HasField)
	if len(missing) == 0 {
		return typ, nil
	}

	updated, err := r.client.AddRelationshipTypeFields(ctx, typ.ID, missing)
	if err != nil {
		return nil, fmt.Errorf("add relationship type fields: %w", err)
	}
	metrics.RecordRemoteWrite("relationship_type_fields")
	r.logger.Info().Str("relationship_type_id", typ.ID).Int("fields", len(missing)).
		Msg("relationship type fields added")

	if updated != nil {
		return updated, nil
	}
	next := *typ
	next.Fields = append(append([]registry.Field(nil), typ.Fields...), missing...)
	return &next, nil
}
