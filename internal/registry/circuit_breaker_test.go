// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/regsync/internal/config"
)

func TestCircuitBreakerTripsOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cbc := NewCircuitBreakerClient(newTestClient(t, srv.URL), config.BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := cbc.DeleteEntity(ctx, "x"); !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("request %d: err = %v", i, err)
		}
	}
	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cbc.State())
	}

	err := cbc.DeleteEntity(ctx, "x")
	if !errors.Is(err, ErrTransport) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker err = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestCircuitBreakerIgnoresNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cbc := NewCircuitBreakerClient(newTestClient(t, srv.URL), config.BreakerConfig{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.1,
	})
	for i := 0; i < 5; i++ {
		if _, err := cbc.GetEntity(context.Background(), "x", nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, 404s must not trip the breaker", cbc.State())
	}
}

func TestNewHonorsBreakerToggle(t *testing.T) {
	t.Parallel()

	cfg := &config.RegistryConfig{BaseURL: "http://registry.test"}
	if _, ok := New(cfg).(*Client); !ok {
		t.Error("breaker disabled should return the plain client")
	}
	cfg.Breaker.Enabled = true
	if _, ok := New(cfg).(*CircuitBreakerClient); !ok {
		t.Error("breaker enabled should wrap the client")
	}
}
