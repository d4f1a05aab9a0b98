// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/testinfra"
)

const daemonYAML = `
registry:
  base_url: %s
  timeout: 5s
  breaker:
    enabled: false
queue:
  backend: gochannel
  initial_interval: 5ms
  max_interval: 20ms
  handler_retries: 1
store:
  in_memory: true
bindings:
  - kind: person
    entity:
      type: person
      fields:
        first_name: string
      mdm_id_column: mdm_id
      mdm_timeout: 1h
`

func writeConfig(t *testing.T, registryURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regsync.yaml")
	body := strings.Replace(daemonYAML, "%s", registryURL, 1)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadTestConfig(t *testing.T, registryURL string) *config.Config {
	t.Helper()
	t.Setenv(config.ConfigPathEnvVar, "")
	cfg, err := config.LoadFile(writeConfig(t, registryURL))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	return cfg
}

func TestDaemonPushesSavedRecord(t *testing.T) {
	fake := testinfra.NewFakeRegistry(t)
	cfg := loadTestConfig(t, fake.URL())

	d, err := build(t.Context(), cfg)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	tree, err := d.tree()
	if err != nil {
		t.Fatalf("tree() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	select {
	case <-d.queue.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("queue router did not start")
	}

	rec := &models.Record{
		Kind:    "person",
		ID:      "p1",
		Columns: []models.Column{{Name: "first_name", Type: models.FieldString}},
		Values:  map[string]any{"first_name": "Ada"},
	}
	if err := d.store.Save(t.Context(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := d.store.Get(t.Context(), "person", "p1")
		if err != nil {
			t.Fatal(err)
		}
		if id := got.MetaValue(binding.DefaultIDColumn); id != "" {
			if _, ok := fake.Entity(id); !ok {
				t.Errorf("remote entity %s not found", id)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("record was not pushed; registry calls: %v", fake.Calls())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuildRejectsUnknownErrorAction(t *testing.T) {
	fake := testinfra.NewFakeRegistry(t)
	cfg := loadTestConfig(t, fake.URL())
	cfg.Sync.RuntimeErrorAction = "explode"

	if _, err := build(t.Context(), cfg); err == nil {
		t.Fatal("build() accepted an unknown error action")
	}
}

func TestPullWindow(t *testing.T) {
	t.Parallel()
	reg := binding.NewRegistry()
	err := reg.RegisterConfig([]config.BindingConfig{{
		Kind: "person",
		Entity: &config.EntityConfig{
			MDMIDColumn: "mdm_id",
			MDMTimeout:  time.Hour,
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	window := pullWindow(reg)

	tests := []struct {
		name string
		task models.Task
		want time.Duration
	}{
		{"mdm pull", models.PullMDMIDTask("person", "p1"), time.Hour},
		{"entity push", models.PushEntityTask("person", "p1"), 0},
		{"unknown kind", models.PullMDMIDTask("ministry", "m1"), 0},
	}
	for _, tt := range tests {
		if got := window(tt.task); got != tt.want {
			t.Errorf("%s: window = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCheckCommand(t *testing.T) {
	fake := testinfra.NewFakeRegistry(t)
	t.Setenv(config.ConfigPathEnvVar, "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--config", writeConfig(t, fake.URL())})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out.String(), "binding person: entity=true relationships=0") {
		t.Errorf("check output = %q", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q", out.String())
	}
}
