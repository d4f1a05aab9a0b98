// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package fingerprint

import (
	"testing"

	"github.com/tomtom215/regsync/internal/models"
)

func mustFingerprint(t *testing.T, attrs map[string]any) string {
	t.Helper()
	fp, err := Fingerprint(attrs)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	return fp
}

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	a := map[string]any{"first_name": "Ada", "last_name": "Lovelace", "nick": nil}
	b := map[string]any{"nick": nil, "last_name": "Lovelace", "first_name": "Ada"}
	if mustFingerprint(t, a) != mustFingerprint(t, b) {
		t.Error("key order must not affect the fingerprint")
	}

	withTime := map[string]any{"first_name": "Ada", "last_name": "Lovelace", "nick": nil, "client_updated_at": "2024-01-01 00:00:00"}
	if mustFingerprint(t, a) != mustFingerprint(t, withTime) {
		t.Error("client_updated_at must not affect the fingerprint")
	}
	if _, ok := withTime["client_updated_at"]; !ok {
		t.Error("Fingerprint must not mutate its input")
	}

	changed := map[string]any{"first_name": "Ada", "last_name": "Byron", "nick": nil}
	if mustFingerprint(t, a) == mustFingerprint(t, changed) {
		t.Error("different content must change the fingerprint")
	}

	if got := len(mustFingerprint(t, a)); got != 64 {
		t.Errorf("len = %d, want 64 hex chars", got)
	}
}

func TestChanged(t *testing.T) {
	t.Parallel()

	attrs := map[string]any{"name": "North"}
	fp := mustFingerprint(t, attrs)

	tests := []struct {
		name     string
		meta     map[string]string
		fpColumn string
		want     bool
	}{
		{"no remote id", map[string]string{"fp": fp}, "fp", true},
		{"no stored fingerprint", map[string]string{"gr_id": "r1"}, "fp", true},
		{"fingerprinting disabled", map[string]string{"gr_id": "r1", "fp": fp}, "", true},
		{"stale fingerprint", map[string]string{"gr_id": "r1", "fp": "deadbeef"}, "fp", true},
		{"unchanged", map[string]string{"gr_id": "r1", "fp": fp}, "fp", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &models.Record{Kind: "area", ID: "1", Meta: tt.meta}
			if got := Changed(r, "gr_id", tt.fpColumn, attrs); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}
