// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import "testing"

func TestParseErrorAction(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    ErrorAction
		wantErr bool
	}{
		{"", ActionLog, false},
		{"ignore", ActionIgnore, false},
		{" Raise ", ActionRaise, false},
		{"log", ActionLog, false},
		{"panic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseErrorAction(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseErrorAction(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseErrorAction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
