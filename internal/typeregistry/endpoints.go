// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package typeregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/store"
)

// Endpoint is one resolved side of a relationship.
type Endpoint struct {
	// Kind is the local kind of the endpoint, empty for a remote foreign key.
	Kind string

	// Link is the association the endpoint was reached through.
	Link models.Ref

	// Record is the loaded endpoint record. It is nil when the link is empty,
	// the linked record is gone, or the endpoint is a remote foreign key.
	Record *models.Record

	// Binding is binding.BindingEntity or the relationship name on Kind.
	Binding string

	// TypeName is the registry entity type of the endpoint.
	TypeName string

	// Role is the relationship name used for this side of the edge.
	Role string

	// RemoteID is the endpoint's registry id, empty when not pushed yet.
	RemoteID string

	// Remote marks a related endpoint that exists only in the registry.
	Remote bool
}

// Attached reports whether the endpoint points at something.
func (ep Endpoint) Attached() bool {
	if ep.Remote {
		return ep.RemoteID != ""
	}
	return ep.Record != nil
}

// BoundToEntity reports whether the endpoint is a plain entity.
func (ep Endpoint) BoundToEntity() bool {
	return ep.Binding == "" || ep.Binding == binding.BindingEntity
}

// Task returns the push that gives the endpoint a remote id.
func (ep Endpoint) Task() models.Task {
	if ep.BoundToEntity() {
		return models.PushEntityTask(ep.Kind, ep.Record.ID)
	}
	return models.PushRelationshipTask(ep.Kind, ep.Record.ID, ep.Binding)
}

// Endpoints are both sides of a relationship for one record.
type Endpoints struct {
	Primary Endpoint
	Related Endpoint
}

// ResolveEndpoints loads the primary and related endpoints of rel for rec.
func (r *Registry) ResolveEndpoints(ctx context.Context, rel *binding.Relationship, rec *models.Record) (Endpoints, error) {
	primary, err := r.resolveEndpoint(ctx, rel.Primary, rec, rel.PrimaryIsSelf())
	if err != nil {
		return Endpoints{}, fmt.Errorf("primary endpoint: %w", err)
	}

	if rel.RemoteRelated() {
		return Endpoints{
			Primary: primary,
			Related: Endpoint{
				TypeName: rel.RelatedType,
				Role:     roleName(rel.Related.Name, rel.RelatedType),
				RemoteID: RemoteForeignKey(rec, rel.RelatedRemoteIDColumn),
				Remote:   true,
			},
		}, nil
	}

	related, err := r.resolveEndpoint(ctx, rel.Related, rec, false)
	if err != nil {
		return Endpoints{}, fmt.Errorf("related endpoint: %w", err)
	}
	return Endpoints{Primary: primary, Related: related}, nil
}

// RemoteForeignKey reads a registry id the application stores on the record.
// Values take precedence over Meta.
func RemoteForeignKey(rec *models.Record, column string) string {
	if v, ok := rec.Value(column); ok && v != nil {
		return registry.Scalar(v)
	}
	return rec.MetaValue(column)
}

func (r *Registry) resolveEndpoint(ctx context.Context, side binding.Endpoint, rec *models.Record, self bool) (Endpoint, error) {
	ep := Endpoint{Kind: side.Kind, Binding: side.Binding}

	switch {
	case self:
		ep.Kind = rec.Kind
		ep.Link = models.Ref{Kind: rec.Kind, ID: rec.ID}
		ep.Record = rec
	default:
		ep.Link = rec.Link(side.Link)
		if ep.Link.Kind != "" {
			ep.Kind = ep.Link.Kind
		}
		if !ep.Link.IsZero() {
			loaded, err := r.records.Get(ctx, ep.Kind, ep.Link.ID)
			switch {
			case err == nil:
				ep.Record = loaded
			case !errors.Is(err, store.ErrNotFound):
				return Endpoint{}, fmt.Errorf("load %s(%s): %w", ep.Kind, ep.Link.ID, err)
			}
		}
	}

	// Type names of computed descriptors need a record; use a bare one when
	// the endpoint is detached.
	subject := ep.Record
	if subject == nil {
		subject = &models.Record{Kind: ep.Kind, ID: ep.Link.ID}
	}

	if ep.BoundToEntity() {
		e, err := r.bindings.Entity(ep.Kind)
		if err != nil {
			ep.TypeName = ep.Kind
			ep.RemoteID = ep.Record.MetaValue(binding.DefaultIDColumn)
		} else {
			ep.TypeName = e.TypeName(subject)
			ep.RemoteID = ep.Record.MetaValue(e.IDColumn)
		}
	} else {
		other, err := r.bindings.Relationship(ep.Kind, ep.Binding)
		if err != nil {
			return Endpoint{}, err
		}
		ep.TypeName = other.TypeName(subject)
		ep.RemoteID = ep.Record.MetaValue(other.IDColumn)
	}
	ep.Role = roleName(side.Name, ep.TypeName)
	return ep, nil
}

func roleName(name, typeName string) string {
	if name != "" {
		return name
	}
	return typeName
}
