// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestSlogHandlerWritesToZerolog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandler(zerolog.New(&buf)))

	slogger.With("supervisor", "regsync").WithGroup("svc").Warn("service restarted", "name", "queue")

	output := buf.String()
	if !strings.Contains(output, "service restarted") {
		t.Errorf("expected message in output: %s", output)
	}
	if !strings.Contains(output, `"supervisor":"regsync"`) {
		t.Errorf("expected pre-set attribute in output: %s", output)
	}
	if !strings.Contains(output, `"svc.name":"queue"`) {
		t.Errorf("expected grouped attribute in output: %s", output)
	}
	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("expected warn level in output: %s", output)
	}
}

func TestSlogHandlerAttrsKeepTheirGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandler(zerolog.New(&buf)))

	slogger.With("tree", "regsync").WithGroup("layer").With("name", "sync").
		WithGroup("svc").Info("started", "attempt", 2)

	output := buf.String()
	for _, want := range []string{`"tree":"regsync"`, `"layer.name":"sync"`, `"layer.svc.attempt":2`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
	for _, unwanted := range []string{`layer.tree`, `svc.tree`, `svc.name`} {
		if strings.Contains(output, unwanted) {
			t.Errorf("unexpected %s in output: %s", unwanted, output)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWatermillAdapter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	adapter := NewWatermillAdapter(zerolog.New(&buf)).With(watermill.LogFields{"topic": "regsync.tasks"})

	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{"attempt": 2})

	output := buf.String()
	for _, want := range []string{`"topic":"regsync.tasks"`, `"attempt":2`, `"error":"boom"`, "handler failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}
