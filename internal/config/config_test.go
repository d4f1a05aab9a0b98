// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package config

import (
	"strings"
	"testing"
)

func TestValidateQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "gochannel ok",
			mutate: func(*Config) {},
		},
		{
			name:    "same topics",
			mutate:  func(c *Config) { c.Queue.DeadLetterTopic = c.Queue.Topic },
			wantErr: "must differ",
		},
		{
			name: "nats without stream",
			mutate: func(c *Config) {
				c.Queue.Backend = "nats"
				c.Queue.NATS.Stream = ""
			},
			wantErr: "stream",
		},
		{
			name: "embedded nats without store dir",
			mutate: func(c *Config) {
				c.Queue.Backend = "nats"
				c.Queue.NATS.Embedded = true
				c.Queue.NATS.StoreDir = ""
			},
			wantErr: "NATS_STORE_DIR",
		},
		{
			name: "interval ordering",
			mutate: func(c *Config) {
				c.Queue.MaxInterval = c.Queue.InitialInterval / 2
			},
			wantErr: "MaxInterval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBindings(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Bindings = []BindingConfig{
		{Kind: "person", Entity: &EntityConfig{}},
		{Kind: "person", Entity: &EntityConfig{}},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "declared twice") {
		t.Errorf("duplicate kinds: got %v", err)
	}

	cfg.Bindings = []BindingConfig{{Kind: "empty"}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "neither") {
		t.Errorf("empty binding: got %v", err)
	}

	cfg.Bindings = []BindingConfig{{Kind: "person", Entity: &EntityConfig{PushOn: []string{"touch"}}}}
	if err := cfg.Validate(); err == nil {
		t.Error("invalid push_on event should fail validation")
	}

	cfg.Bindings = []BindingConfig{{Kind: "rel", Relationships: []RelationshipConfig{{}}}}
	if err := cfg.Validate(); err == nil {
		t.Error("relationship without a name should fail validation")
	}
}

func TestValidateStore(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty store path without in_memory should fail")
	}
	cfg.Store.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory store needs no path, got %v", err)
	}
}

func TestValidateLogging(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "WARNING", "disabled"} {
		cfg := defaultConfig()
		cfg.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("level %q: Validate() = %v, want nil", level, err)
		}
	}
	cfg := defaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
		t.Errorf("Validate() = %v, want LOG_LEVEL error", err)
	}
}
