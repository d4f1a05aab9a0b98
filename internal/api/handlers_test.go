// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/metrics"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/store"
)

type fakePusher struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (f *fakePusher) Push(_ context.Context, rec *models.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, rec.Kind+"/"+rec.ID)
	return nil
}

func (f *fakePusher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePusher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pushed...)
}

type queueState bool

func (q queueState) IsRunning() bool { return bool(q) }

type fixture struct {
	srv    *httptest.Server
	store  *store.Store
	pusher *fakePusher
}

func newFixture(t *testing.T, cfg config.ServerConfig) *fixture {
	t.Helper()
	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	pusher := &fakePusher{}
	srv := httptest.NewServer(NewRouter(st, pusher, queueState(true), cfg).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: st, pusher: pusher}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, APIResponse) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var out APIResponse
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s %s body %q: %v", method, path, data, err)
		}
	}
	return resp, out
}

func checkStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func checkErrorCode(t *testing.T, body APIResponse, want string) {
	t.Helper()
	if body.Error == nil || body.Error.Code != want {
		t.Errorf("error = %+v, want code %s", body.Error, want)
	}
}

func TestPutAndGetRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})

	resp, body := f.do(t, http.MethodPut, "/v1/records/person/p1",
		`{"kind":"ignored","values":{"name":"Ada"},"meta":{"registry_id":"forged"}}`)
	checkStatus(t, resp, http.StatusOK)
	if !body.Success {
		t.Fatalf("PUT body = %+v", body)
	}

	rec, err := f.store.Get(t.Context(), "person", "p1")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if rec.Values["name"] != "Ada" {
		t.Errorf("name = %v, want Ada", rec.Values["name"])
	}
	if rec.MetaValue("registry_id") != "" {
		t.Error("meta from request body was stored")
	}

	resp, body = f.do(t, http.MethodGet, "/v1/records/person/p1", "")
	checkStatus(t, resp, http.StatusOK)
	data, _ := body.Data.(map[string]any)
	if data["id"] != "p1" || data["kind"] != "person" {
		t.Errorf("GET data = %v", body.Data)
	}
}

func TestPutRejectsInvalidBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})

	resp, body := f.do(t, http.MethodPut, "/v1/records/person/p1", `{"values":`)
	checkStatus(t, resp, http.StatusBadRequest)
	checkErrorCode(t, body, ErrCodeBadRequest)

	resp, body = f.do(t, http.MethodPut, "/v1/records/person/p1", `{"columns":[{"name":"x"}]}`)
	checkStatus(t, resp, http.StatusBadRequest)
	checkErrorCode(t, body, ErrCodeValidationFailed)
}

func TestPutReportsHookFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})
	f.store.OnChange(func(context.Context, models.Change) error {
		return errors.New("enqueue failed")
	})

	resp, body := f.do(t, http.MethodPut, "/v1/records/person/p1", `{}`)
	checkStatus(t, resp, http.StatusBadGateway)
	checkErrorCode(t, body, ErrCodeDispatchFailed)
	if _, err := f.store.Get(t.Context(), "person", "p1"); err != nil {
		t.Errorf("record not committed: %v", err)
	}
}

func TestGetAndDeleteMissingRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})

	for _, method := range []string{http.MethodGet, http.MethodDelete, http.MethodPost} {
		path := "/v1/records/person/nope"
		if method == http.MethodPost {
			path += "/push"
		}
		resp, body := f.do(t, method, path, "")
		checkStatus(t, resp, http.StatusNotFound)
		checkErrorCode(t, body, ErrCodeNotFound)
	}
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})
	if err := f.store.Save(t.Context(), &models.Record{Kind: "person", ID: "p1"}); err != nil {
		t.Fatal(err)
	}

	resp, _ := f.do(t, http.MethodDelete, "/v1/records/person/p1", "")
	checkStatus(t, resp, http.StatusNoContent)
	if _, err := f.store.Get(t.Context(), "person", "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}

func TestListRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})

	resp, body := f.do(t, http.MethodGet, "/v1/records/person", "")
	checkStatus(t, resp, http.StatusOK)
	if body.Meta == nil || body.Meta.Count == nil || *body.Meta.Count != 0 {
		t.Errorf("empty list meta = %+v", body.Meta)
	}

	for i := range 3 {
		if err := f.store.Save(t.Context(), &models.Record{Kind: "person", ID: fmt.Sprintf("p%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	_, body = f.do(t, http.MethodGet, "/v1/records/person", "")
	if items, _ := body.Data.([]any); len(items) != 3 {
		t.Errorf("listed %d records, want 3", len(items))
	}
}

func TestPushRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})
	if err := f.store.Save(t.Context(), &models.Record{Kind: "person", ID: "p1"}); err != nil {
		t.Fatal(err)
	}

	resp, _ := f.do(t, http.MethodPost, "/v1/records/person/p1/push", "")
	checkStatus(t, resp, http.StatusAccepted)
	if got := f.pusher.calls(); len(got) != 1 || got[0] != "person/p1" {
		t.Errorf("pushed = %v", got)
	}

	f.pusher.fail(fmt.Errorf("lookup: %w", binding.ErrUnknownKind))
	resp, _ = f.do(t, http.MethodPost, "/v1/records/person/p1/push", "")
	checkStatus(t, resp, http.StatusNotFound)

	f.pusher.fail(errors.New("queue closed"))
	resp, body := f.do(t, http.MethodPost, "/v1/records/person/p1/push", "")
	checkStatus(t, resp, http.StatusBadGateway)
	checkErrorCode(t, body, ErrCodeDispatchFailed)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		running bool
		want    int
		status  string
	}{
		{"running", true, http.StatusOK, "ok"},
		{"stopped", false, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h := NewRouter(nil, nil, queueState(tt.running), config.ServerConfig{}).Handler()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var got HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.status || got.QueueRunning != tt.running {
				t.Errorf("health = %+v", got)
			}
		})
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{})

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, f.srv.URL+"/v1/records/person/none", nil)
	req.Header.Set(CorrelationHeader, "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get(CorrelationHeader); got != "corr-123" {
		t.Errorf("response correlation id = %q", got)
	}
	var body APIResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == nil || body.Error.CorrelationID != "corr-123" {
		t.Errorf("error correlation id = %+v", body.Error)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ServerConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	for range 2 {
		resp, _ := f.do(t, http.MethodGet, "/v1/records/person", "")
		checkStatus(t, resp, http.StatusOK)
	}
	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, f.srv.URL+"/v1/records/person", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	checkStatus(t, resp, http.StatusTooManyRequests)
}

func TestRequestMetricsUsesRoutePattern(t *testing.T) {
	t.Parallel()
	h := NewRouter(nil, nil, queueState(true), config.ServerConfig{}).Handler()
	counter := metrics.APIRequests.WithLabelValues(http.MethodGet, "/health", "200")
	before := testutil.ToFloat64(counter)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(counter) - before; got < 1 {
		t.Errorf("api request counter delta = %v, want >= 1", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	NewRouter(nil, nil, queueState(true), config.ServerConfig{}).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("/metrics status = %d", rec.Code)
	}
}
