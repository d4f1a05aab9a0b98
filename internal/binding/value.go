// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package binding

import "github.com/tomtom215/regsync/internal/models"

// Value is a descriptor setting that is either a constant or computed from
// the record at push time. The zero Value is unset.
type Value[T any] struct {
	constant T
	compute  func(*models.Record) T
	set      bool
}

// Constant returns a Value that always resolves to v.
func Constant[T any](v T) Value[T] {
	return Value[T]{constant: v, set: true}
}

// Computed returns a Value resolved by calling fn with the record being pushed.
func Computed[T any](fn func(*models.Record) T) Value[T] {
	return Value[T]{compute: fn, set: fn != nil}
}

// IsSet reports whether the value was configured.
func (v Value[T]) IsSet() bool {
	return v.set
}

// IsComputed reports whether the value depends on the record.
func (v Value[T]) IsComputed() bool {
	return v.compute != nil
}

// Resolve returns the value for r, or the zero T when unset.
func (v Value[T]) Resolve(r *models.Record) T {
	if v.compute != nil {
		return v.compute(r)
	}
	return v.constant
}

// Or resolves the value for r, falling back to def when unset.
func (v Value[T]) Or(r *models.Record, def T) T {
	if !v.set {
		return def
	}
	return v.Resolve(r)
}

// Condition gates enqueueing for a record.
type Condition func(*models.Record) bool
