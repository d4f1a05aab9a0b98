// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package fingerprint detects whether a record's pushable attributes changed
// since the last successful push.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/models"
)

// Fingerprint returns the SHA-256 hex digest of the canonical JSON encoding
// of attrs. Map keys are encoded in sorted order and volatile attributes are
// left out, so equal pushable content always yields the same digest.
func Fingerprint(attrs map[string]any) (string, error) {
	stable := make(map[string]any, len(attrs))
	for k, v := range attrs {
		stable[k] = v
	}
	for _, k := range binding.VolatileAttributes {
		delete(stable, k)
	}

	data, err := json.Marshal(stable)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Changed reports whether r must be pushed. It is false only when r has a
// remote id, a stored fingerprint, and that fingerprint matches attrs.
func Changed(r *models.Record, idColumn, fpColumn string, attrs map[string]any) bool {
	if r.MetaValue(idColumn) == "" {
		return true
	}
	stored := r.MetaValue(fpColumn)
	if fpColumn == "" || stored == "" {
		return true
	}
	fresh, err := Fingerprint(attrs)
	if err != nil {
		return true
	}
	return fresh != stored
}
