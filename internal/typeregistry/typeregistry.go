// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package typeregistry resolves and creates the remote entity types and
// relationship types records are pushed into.
//
// Resolved types are kept in a TTL cache. The cache is never authoritative:
// a miss or an expired entry re-queries the registry, and two tasks racing on
// the same miss may both create the type.
package typeregistry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/cache"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/store"
)

// DefaultTTL is how long a resolved type stays cached.
const DefaultTTL = time.Hour

// Sentinel errors. Both are fatal for the task that hits them.
var (
	ErrRelatedTypeMissing = errors.New("related entity type does not exist")
	ErrPrimaryTypeMissing = errors.New("primary entity type does not exist")
)

// RecordLoader reads local records. *store.Store implements it.
type RecordLoader interface {
	Get(ctx context.Context, kind, id string) (*models.Record, error)
}

// Registry ensures remote types exist before records are pushed.
type Registry struct {
	client   registry.Registry
	bindings *binding.Registry
	records  RecordLoader
	logger   zerolog.Logger

	entityTypes *cache.Cache[*registry.EntityType]
	relTypes    *cache.Cache[*registry.RelationshipType]
}

// New creates a type registry. A non-positive ttl uses DefaultTTL.
func New(client registry.Registry, bindings *binding.Registry, records RecordLoader, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		client:      client,
		bindings:    bindings,
		records:     records,
		logger:      logging.WithComponent("typeregistry"),
		entityTypes: cache.New[*registry.EntityType](ttl, ttl/4),
		relTypes:    cache.New[*registry.RelationshipType](ttl, ttl/4),
	}
}

// Close stops the cache cleanup goroutines.
func (r *Registry) Close() {
	r.entityTypes.Close()
	r.relTypes.Close()
}

// Flush drops every cached type.
func (r *Registry) Flush() {
	r.entityTypes.Clear()
	r.relTypes.Clear()
}

// EnsureEntityType returns the remote entity type for rec, creating the type
// and any missing fields first. A non-self parent's type is ensured before
// the child's and becomes its parent_id. It returns nil when EnsureType is off.
func (r *Registry) EnsureEntityType(ctx context.Context, e *binding.Entity, rec *models.Record) (*registry.EntityType, error) {
	if !e.EnsureType {
		return nil, nil
	}

	parentTypeID, err := r.parentTypeID(ctx, e, rec)
	if err != nil {
		return nil, err
	}

	name := e.TypeName(rec)
	key := cache.Key("entity_type", name, parentTypeID)
	typ, hit := r.entityTypes.Get(key)
	metrics.RecordTypeCache("entity", hit)
	if !hit {
		typ, err = r.findOrCreateEntityType(ctx, name, parentTypeID)
		if err != nil {
			return nil, err
		}
	}

	typ, err = r.ensureFields(ctx, typ, e.Columns(rec))
	if err != nil {
		return nil, err
	}
	r.entityTypes.Set(key, typ)
	return typ, nil
}

// LookupEntityType finds a root-level or any entity type by name without
// creating it. It returns nil when the registry has none.
func (r *Registry) LookupEntityType(ctx context.Context, name string) (*registry.EntityType, error) {
	key := cache.Key("entity_type_lookup", name)
	if typ, ok := r.entityTypes.Get(key); ok {
		metrics.RecordTypeCache("entity", true)
		return typ, nil
	}
	metrics.RecordTypeCache("entity", false)

	found, err := r.client.FindEntityTypes(ctx, name, "")
	if err != nil {
		return nil, fmt.Errorf("find entity type %s: %w", name, err)
	}
	if len(found) == 0 {
		r.logger.Debug().Str("type", name).Msg("entity type not found by name")
		return nil, nil
	}
	typ := &found[0]
	r.entityTypes.Set(key, typ)
	return typ, nil
}

func (r *Registry) parentTypeID(ctx context.Context, e *binding.Entity, rec *models.Record) (string, error) {
	if !e.ParentRequired() {
		return "", nil
	}
	link := rec.Link(e.Parent)
	parentBinding, err := r.bindings.Entity(e.ParentKind)
	if err != nil {
		// The parent kind is not pushed as an entity, so the child is a root type.
		return "", nil
	}

	parent := &models.Record{Kind: e.ParentKind, ID: link.ID}
	if !link.IsZero() {
		loaded, err := r.records.Get(ctx, e.ParentKind, link.ID)
		switch {
		case err == nil:
			parent = loaded
		case !errors.Is(err, store.ErrNotFound):
			return "", fmt.Errorf("load parent %s(%s): %w", e.ParentKind, link.ID, err)
		}
	}

	typ, err := r.EnsureEntityType(ctx, parentBinding, parent)
	if err != nil {
		return "", fmt.Errorf("ensure parent type: %w", err)
	}
	if typ == nil {
		return "", nil
	}
	return typ.ID, nil
}

func (r *Registry) findOrCreateEntityType(ctx context.Context, name, parentTypeID string) (*registry.EntityType, error) {
	found, err := r.client.FindEntityTypes(ctx, name, parentTypeID)
	if err != nil {
		return nil, fmt.Errorf("find entity type %s: %w", name, err)
	}
	if len(found) > 0 {
		r.logger.Debug().Str("type", name).Str("type_id", found[0].ID).Msg("entity type resolved")
		return &found[0], nil
	}

	typ, err := r.client.CreateEntityType(ctx, registry.NewEntityType{
		Name:      name,
		ParentID:  parentTypeID,
		FieldType: registry.FieldTypeEntity,
	})
	if err != nil {
		return nil, fmt.Errorf("create entity type %s: %w", name, err)
	}
	metrics.RecordRemoteWrite("entity_type")
	r.logger.Info().Str("type", name).Str("type_id", typ.ID).Str("parent_type_id", parentTypeID).
		Msg("entity type created")
	return typ, nil
}

// ensureFields adds every column the type lacks. Fields are never removed or retyped.
func (r *Registry) ensureFields(ctx context.Context, typ *registry.EntityType, columns map[string]models.FieldType) (*registry.EntityType, error) {
	missing := missingFields(columns, typ.HasField)
	if len(missing) == 0 {
		return typ, nil
	}

	next := *typ
	next.Fields = append([]registry.Field(nil), typ.Fields...)
	for _, f := range missing {
		created, err := r.client.CreateEntityType(ctx, registry.NewEntityType{
			Name:      f.Name,
			ParentID:  typ.ID,
			FieldType: f.FieldType,
		})
		if err != nil {
			return nil, fmt.Errorf("add field %s to %s: %w", f.Name, typ.Name, err)
		}
		metrics.RecordRemoteWrite("entity_type_field")
		next.Fields = append(next.Fields, registry.Field{ID: created.ID, Name: f.Name, FieldType: f.FieldType})
	}
	r.logger.Info().Str("type", typ.Name).Int("fields", len(missing)).Msg("entity type fields added")
	return &next, nil
}

func missingFields(columns map[string]models.FieldType, has func(string) bool) []registry.Field {
	var out []registry.Field
	for name, t := range columns {
		if !has(name) {
			out = append(out, registry.Field{Name: name, FieldType: string(t)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
