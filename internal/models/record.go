// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package models defines the local record and task types shared by the
// store, the synchronizers and the queue.
package models

import (
	"maps"
	"slices"
	"time"
)

// FieldType is a registry field type. Local column types use the same names.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
	FieldUUID     FieldType = "uuid"
	FieldInteger  FieldType = "integer"
	FieldDecimal  FieldType = "decimal"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldEmail    FieldType = "email"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldText, FieldUUID, FieldInteger, FieldDecimal,
		FieldFloat, FieldBoolean, FieldDate, FieldDateTime, FieldEmail:
		return true
	}
	return false
}

// Column is one introspected attribute of a record.
type Column struct {
	Name string    `json:"name" validate:"required"`
	Type FieldType `json:"type" validate:"required"`
}

// Ref points at another local record. A zero Ref means the association is empty.
type Ref struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

// IsZero reports whether the reference points nowhere.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// Record is an application-owned row as seen by the synchronizers.
//
// Values and Links belong to the application. Meta holds the columns the
// synchronizers own (remote ids, fingerprints, mdm ids) and is only written
// through the store's metadata-only update.
type Record struct {
	Kind      string            `json:"kind" validate:"required"`
	ID        string            `json:"id" validate:"required"`
	Columns   []Column          `json:"columns,omitempty" validate:"dive"`
	Values    map[string]any    `json:"values,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Links     map[string]Ref    `json:"links,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Value returns the named attribute. ok is false when the attribute is not set.
func (r *Record) Value(name string) (any, bool) {
	if r == nil || r.Values == nil {
		return nil, false
	}
	v, ok := r.Values[name]
	return v, ok
}

// Column returns the introspected column with the given name.
func (r *Record) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// MetaValue returns a synchronizer-owned column, empty when unset.
func (r *Record) MetaValue(column string) string {
	if r == nil || r.Meta == nil {
		return ""
	}
	return r.Meta[column]
}

// SetMeta sets a synchronizer-owned column. An empty value removes it.
func (r *Record) SetMeta(column, value string) {
	if value == "" {
		delete(r.Meta, column)
		return
	}
	if r.Meta == nil {
		r.Meta = make(map[string]string)
	}
	r.Meta[column] = value
}

// Link returns the named association, zero when absent.
func (r *Record) Link(name string) Ref {
	if r == nil || r.Links == nil {
		return Ref{}
	}
	return r.Links[name]
}

// Clone returns a deep enough copy for the store to hand out without sharing maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Columns = slices.Clone(r.Columns)
	c.Values = maps.Clone(r.Values)
	c.Meta = maps.Clone(r.Meta)
	c.Links = maps.Clone(r.Links)
	return &c
}

// Event is a record lifecycle event.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Change describes one saved or deleted record. Previous is nil on create.
// On delete Record holds the last stored state.
type Change struct {
	Event    Event
	Record   *Record
	Previous *Record
}

// LinkChanged reports the previous and current value of an association and
// whether the save changed it.
func (c Change) LinkChanged(name string) (prev, cur Ref, changed bool) {
	cur = c.Record.Link(name)
	if c.Previous == nil {
		return Ref{}, cur, !cur.IsZero()
	}
	prev = c.Previous.Link(name)
	return prev, cur, prev != cur
}
