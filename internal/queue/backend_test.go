// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package queue

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/regsync/internal/config"
)

func TestOpenBackends(t *testing.T) {
	t.Parallel()
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"gochannel", false},
		{"", false},
		{"kafka", true},
	}
	for _, tt := range tests {
		b, err := Open(context.Background(), config.QueueConfig{Backend: tt.backend}, watermill.NopLogger{})
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			continue
		}
		if err == nil {
			if b.Publisher == nil || b.Subscriber == nil {
				t.Errorf("Open(%q) returned an incomplete backend", tt.backend)
			}
			if err := b.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		}
	}
}
