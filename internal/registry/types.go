// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package registry

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// FieldTypeEntity is the field type of an entity type that holds fields.
const FieldTypeEntity = "entity"

// Field is one field of an entity or relationship type.
type Field struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	FieldType string `json:"field_type"`
}

// EntityType is a registry entity type. Fields are themselves entity types
// whose parent is this one.
type EntityType struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  string  `json:"parent_id,omitempty"`
	FieldType string  `json:"field_type,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
}

// HasField reports whether the type already declares name.
func (t *EntityType) HasField(name string) bool {
	return hasField(t.Fields, name)
}

// NewEntityType is the body of an entity type or field creation.
type NewEntityType struct {
	Name      string
	ParentID  string
	FieldType string
}

// MarshalJSON sends an empty parent as null.
func (n NewEntityType) MarshalJSON() ([]byte, error) {
	var parent any
	if n.ParentID != "" {
		parent = n.ParentID
	}
	return json.Marshal(map[string]any{
		"name":       n.Name,
		"parent_id":  parent,
		"field_type": n.FieldType,
	})
}

// Role is one side of a relationship type.
type Role struct {
	EntityType       string `json:"entity_type,omitempty"`
	RelationshipName string `json:"relationship_name"`
}

// RelationshipType is a registry relationship type between two entity types.
type RelationshipType struct {
	ID                       string  `json:"id"`
	Relationship1            Role    `json:"relationship1"`
	Relationship2            Role    `json:"relationship2"`
	RelationshipEntityTypeID string  `json:"relationship_entity_type_id,omitempty"`
	Fields                   []Field `json:"fields,omitempty"`
}

// HasField reports whether the relationship type already declares name.
func (t *RelationshipType) HasField(name string) bool {
	return hasField(t.Fields, name)
}

// NewRelationshipType is the body of a relationship type creation.
type NewRelationshipType struct {
	EntityType1ID string `json:"entity_type1_id"`
	EntityType2ID string `json:"entity_type2_id"`
	Relationship1 string `json:"relationship1"`
	Relationship2 string `json:"relationship2"`
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Document is a free-form entity payload. Entity bodies are keyed by type
// name, so they cannot be decoded into fixed structs.
type Document map[string]any

// Lookup walks nested objects along path.
func (d Document) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path rendered as a string, empty when absent.
func (d Document) String(path ...string) string {
	v, ok := d.Lookup(path...)
	if !ok {
		return ""
	}
	return Scalar(v)
}

// List returns the objects at path. A single object is returned as a one
// element list, mirroring how the registry collapses singletons.
func (d Document) List(path ...string) []Document {
	v, ok := d.Lookup(path...)
	if !ok || v == nil {
		return nil
	}
	if m, ok := asMap(v); ok {
		return []Document{m}
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(items))
	for _, item := range items {
		if m, ok := asMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}

// Scalar renders a JSON scalar as a string. An object carrying a "value" key
// is unwrapped first, which is how the registry returns owned attributes.
func Scalar(v any) string {
	if m, ok := asMap(v); ok {
		v = m["value"]
	}
	switch sv := v.(type) {
	case nil:
		return ""
	case string:
		return sv
	case json.Number:
		return sv.String()
	case float64:
		return strconv.FormatFloat(sv, 'f', -1, 64)
	default:
		return fmt.Sprint(sv)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}
