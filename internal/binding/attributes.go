// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package binding

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/regsync/internal/models"
)

const (
	// DateTimeFormat is the sortable timestamp layout the registry expects.
	DateTimeFormat = "2006-01-02 15:04:05"

	// DateFormat is the layout for date-only columns.
	DateFormat = "2006-01-02"

	// AttrClientIntegrationID correlates remote objects with local records.
	AttrClientIntegrationID = "client_integration_id"

	// AttrClientUpdatedAt carries the record's last modification time.
	AttrClientUpdatedAt = "client_updated_at"

	// AttrParentID carries a self-referencing parent's remote id.
	AttrParentID = "parent_id"
)

// VolatileAttributes never take part in change detection.
var VolatileAttributes = []string{AttrClientUpdatedAt}

// NormalizeColumnType maps an introspected column onto a registry field type:
// text is pushed as string and foreign-key-looking names as uuid.
func NormalizeColumnType(c models.Column) models.FieldType {
	switch {
	case c.Type == models.FieldText:
		return models.FieldString
	case strings.HasSuffix(c.Name, "_id"):
		return models.FieldUUID
	default:
		return c.Type
	}
}

// EntityAttributes builds the attribute body pushed for r. parentRemoteID is
// only used when the parent is a record of the same kind.
func (e *Entity) EntityAttributes(r *models.Record, parentRemoteID string) map[string]any {
	exclude := e.ExcludeFields(r)
	attrs := serializeColumns(r, e.Columns(r))
	if !slices.Contains(exclude, AttrClientIntegrationID) {
		attrs[AttrClientIntegrationID] = r.ID
	}
	if !r.UpdatedAt.IsZero() {
		attrs[AttrClientUpdatedAt] = FormatDateTime(r.UpdatedAt)
	}
	if e.ParentIsSelf() {
		attrs[AttrParentID] = nilIfEmpty(parentRemoteID)
	}
	return attrs
}

// EdgeAttributes builds the attribute body of the relationship edge for r.
func (rel *Relationship) EdgeAttributes(r *models.Record) map[string]any {
	exclude := rel.ExcludeFields(r)
	attrs := serializeColumns(r, rel.Columns(r))
	if !slices.Contains(exclude, AttrClientIntegrationID) {
		attrs[AttrClientIntegrationID] = rel.IntegrationID(r)
	}
	if !r.UpdatedAt.IsZero() {
		attrs[AttrClientUpdatedAt] = FormatDateTime(r.UpdatedAt)
	}
	return attrs
}

// SerializeValue renders v the way the registry stores the given field type.
// Nil stays nil so the attribute is sent as JSON null.
func SerializeValue(v any, t models.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case models.FieldDateTime:
		if ts, ok := asTime(v); ok {
			return FormatDateTime(ts)
		}
	case models.FieldDate:
		if ts, ok := asTime(v); ok {
			return ts.Format(DateFormat)
		}
	case models.FieldBoolean:
		return strconv.FormatBool(truthy(v))
	}
	return strings.TrimSpace(stringify(v))
}

// FormatDateTime renders ts in UTC using DateTimeFormat.
func FormatDateTime(ts time.Time) string {
	return ts.UTC().Format(DateTimeFormat)
}

func resolveColumns(
	r *models.Record,
	includeAll bool,
	fields Value[map[string]models.FieldType],
	exclude []string,
) map[string]models.FieldType {
	out := make(map[string]models.FieldType)
	if includeAll {
		for _, c := range r.Columns {
			if slices.Contains(exclude, c.Name) {
				continue
			}
			out[c.Name] = NormalizeColumnType(c)
		}
	}
	for name, t := range fields.Resolve(r) {
		out[name] = t
	}
	return out
}

func serializeColumns(r *models.Record, columns map[string]models.FieldType) map[string]any {
	attrs := make(map[string]any, len(columns)+3)
	for name, t := range columns {
		v, ok := r.Value(name)
		if !ok {
			continue
		}
		attrs[name] = SerializeValue(v, t)
	}
	return attrs
}

func asTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, true
	case *time.Time:
		if tv == nil {
			return time.Time{}, false
		}
		return *tv, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, DateTimeFormat, DateFormat} {
			if ts, err := time.Parse(layout, tv); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func truthy(v any) bool {
	switch bv := v.(type) {
	case bool:
		return bv
	case string:
		if b, err := strconv.ParseBool(bv); err == nil {
			return b
		}
		return bv != ""
	default:
		return true
	}
}

func stringify(v any) string {
	switch sv := v.(type) {
	case string:
		return sv
	case float64:
		return strconv.FormatFloat(sv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(sv), 'f', -1, 32)
	case json.Number:
		return sv.String()
	case fmt.Stringer:
		return sv.String()
	default:
		return fmt.Sprint(v)
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
