// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package binding

import (
	"fmt"

	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/models"
)

// FromConfig converts declarative binding settings into descriptors.
// Declarative settings are always constants; computed values and conditions
// are only available to bindings registered in code.
func FromConfig(cfgs []config.BindingConfig) ([]Binding, error) {
	out := make([]Binding, 0, len(cfgs))
	for _, c := range cfgs {
		b := Binding{Kind: c.Kind}
		if c.Entity != nil {
			e, err := entityFromConfig(c.Entity)
			if err != nil {
				return nil, fmt.Errorf("%w: %s entity: %w", ErrInvalidBinding, c.Kind, err)
			}
			b.Entity = &e
		}
		for _, rc := range c.Relationships {
			rel, err := relationshipFromConfig(rc)
			if err != nil {
				return nil, fmt.Errorf("%w: %s relationship %s: %w", ErrInvalidBinding, c.Kind, rc.Name, err)
			}
			b.Relationships = append(b.Relationships, rel)
		}
		out = append(out, b)
	}
	return out, nil
}

// RegisterConfig converts cfgs and registers every resulting binding.
func (r *Registry) RegisterConfig(cfgs []config.BindingConfig) error {
	bindings, err := FromConfig(cfgs)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			return err
		}
	}
	return nil
}

func entityFromConfig(c *config.EntityConfig) (Entity, error) {
	e := DefaultEntity()
	if c.Type != "" {
		e.Type = Constant(c.Type)
	}
	if c.IDColumn != "" {
		e.IDColumn = c.IDColumn
	}
	e.FingerprintColumn = c.FingerprintColumn
	e.MDMIDColumn = c.MDMIDColumn
	if c.MDMTimeout > 0 {
		e.MDMTimeout = c.MDMTimeout
	}
	e.Parent = c.Parent
	e.ParentKind = c.ParentKind
	e.ParentForeignKey = c.ParentForeignKey
	e.IncludeAllColumns = c.IncludeAllColumns
	if c.EnsureType != nil {
		e.EnsureType = *c.EnsureType
	}

	fields, err := fieldTypes(c.Fields)
	if err != nil {
		return Entity{}, err
	}
	if fields != nil {
		e.Fields = Constant(fields)
	}
	if len(c.Exclude) > 0 {
		e.Exclude = Constant(c.Exclude)
	}
	if len(c.PushOn) > 0 {
		e.PushOn = make([]models.Event, 0, len(c.PushOn))
		for _, ev := range c.PushOn {
			e.PushOn = append(e.PushOn, models.Event(ev))
		}
	}
	return e, nil
}

func relationshipFromConfig(c config.RelationshipConfig) (Relationship, error) {
	rel := DefaultRelationship(c.Name)
	if c.Type != "" {
		rel.Type = Constant(c.Type)
	}
	if c.IDColumn != "" {
		rel.IDColumn = c.IDColumn
	}
	rel.Primary = endpointFromConfig(c.Primary)
	rel.Related = endpointFromConfig(c.Related)
	rel.RelatedType = c.RelatedType
	rel.RelatedRemoteIDColumn = c.RelatedRemoteIDColumn
	rel.IncludeAllColumns = c.IncludeAllColumns
	if c.EnsureType != nil {
		rel.EnsureType = *c.EnsureType
	}
	if c.RenameEntityType != nil {
		rel.RenameEntityType = *c.RenameEntityType
	}

	fields, err := fieldTypes(c.Fields)
	if err != nil {
		return Relationship{}, err
	}
	if fields != nil {
		rel.Fields = Constant(fields)
	}
	if len(c.Exclude) > 0 {
		rel.Exclude = Constant(c.Exclude)
	}
	return rel, nil
}

func endpointFromConfig(c config.EndpointConfig) Endpoint {
	return Endpoint{
		Link:       c.Link,
		Kind:       c.Kind,
		Binding:    c.Binding,
		Name:       c.Name,
		ForeignKey: c.ForeignKey,
	}
}

func fieldTypes(in map[string]string) (map[string]models.FieldType, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]models.FieldType, len(in))
	for name, t := range in {
		ft := models.FieldType(t)
		if !ft.Valid() {
			return nil, fmt.Errorf("field %s: unknown type %q", name, t)
		}
		out[name] = ft
	}
	return out, nil
}
