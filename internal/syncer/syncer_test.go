// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
	"github.com/tomtom215/regsync/internal/store"
	"github.com/tomtom215/regsync/internal/testinfra"
	"github.com/tomtom215/regsync/internal/typeregistry"
)

// recordingQueue collects enqueued tasks instead of running them.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, t models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) take() []models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

type harness struct {
	fake   *testinfra.FakeRegistry
	client registry.Registry
	store  *store.Store
	queue  *recordingQueue
	syncer *Syncer
}

func newHarness(t *testing.T, bindings ...binding.Binding) *harness {
	t.Helper()
	fake := testinfra.NewFakeRegistry(t)
	client := registry.NewClient(&config.RegistryConfig{BaseURL: fake.URL(), Timeout: 5 * time.Second})

	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := binding.NewRegistry().MustRegister(bindings...)
	types := typeregistry.New(client, reg, st, time.Hour)
	t.Cleanup(types.Close)

	q := &recordingQueue{}
	return &harness{
		fake:   fake,
		client: client,
		store:  st,
		queue:  q,
		syncer: New(client, types, reg, st, q),
	}
}

func (h *harness) save(t *testing.T, r *models.Record) {
	t.Helper()
	if err := h.store.Save(context.Background(), r); err != nil {
		t.Fatalf("Save(%s/%s) error = %v", r.Kind, r.ID, err)
	}
}

func (h *harness) get(t *testing.T, kind, id string) *models.Record {
	t.Helper()
	r, err := h.store.Get(context.Background(), kind, id)
	if err != nil {
		t.Fatalf("Get(%s/%s) error = %v", kind, id, err)
	}
	return r
}

func (h *harness) run(t *testing.T, task models.Task) Result {
	t.Helper()
	res, err := h.syncer.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run(%s) error = %v", task, err)
	}
	return res
}

// drain runs task and everything it enqueues the way the queue would: retried
// tasks go to the back so their prerequisites run first.
func (h *harness) drain(t *testing.T, task models.Task) {
	t.Helper()
	pending := []models.Task{task}
	for i := 0; len(pending) > 0; i++ {
		if i > 50 {
			t.Fatalf("tasks did not converge, pending %v", pending)
		}
		next := pending[0]
		pending = pending[1:]

		res := h.run(t, next)
		for _, queued := range h.queue.take() {
			if !containsKey(pending, queued) {
				pending = append(pending, queued)
			}
		}
		switch res.Outcome {
		case OutcomeRetry:
			pending = append(pending, next)
		case OutcomeFatal:
			t.Fatalf("%s: fatal: %v", next, res.Err)
		}
	}
}

func containsKey(tasks []models.Task, t models.Task) bool {
	for _, p := range tasks {
		if p.Key() == t.Key() {
			return true
		}
	}
	return false
}

func checkOutcome(t *testing.T, res Result, want Outcome) {
	t.Helper()
	if res.Outcome != want {
		t.Fatalf("outcome = %s, want %s", res, want)
	}
}

func checkRemoteID(t *testing.T, r *models.Record, column string) string {
	t.Helper()
	id := r.MetaValue(column)
	if id == "" {
		t.Fatalf("%s(%s) has no %s", r.Kind, r.ID, column)
	}
	return id
}

func stringFields(names ...string) binding.Value[map[string]models.FieldType] {
	out := make(map[string]models.FieldType, len(names))
	for _, n := range names {
		out[n] = models.FieldString
	}
	return binding.Constant(out)
}

func entityBinding(kind string, mutate func(*binding.Entity)) binding.Binding {
	e := binding.DefaultEntity()
	if mutate != nil {
		mutate(&e)
	}
	return binding.Binding{Kind: kind, Entity: &e}
}

func personRecord(id, first string) *models.Record {
	return &models.Record{
		Kind: "person",
		ID:   id,
		Columns: []models.Column{
			{Name: "first_name", Type: models.FieldString},
			{Name: "last_name", Type: models.FieldString},
		},
		Values: map[string]any{"first_name": first, "last_name": "Lovelace"},
	}
}

func personBinding() binding.Binding {
	return entityBinding("person", func(e *binding.Entity) {
		e.Fields = stringFields("first_name", "last_name")
		e.FingerprintColumn = "push_fingerprint"
	})
}

func TestRunUnknownOp(t *testing.T) {
	t.Parallel()
	h := newHarness(t, personBinding())

	res := h.run(t, models.Task{Op: "rename", Kind: "person", ID: "1"})
	checkOutcome(t, res, OutcomeFatal)
	if !errors.Is(res.Err, ErrUnknownOp) {
		t.Errorf("err = %v, want ErrUnknownOp", res.Err)
	}
}

func TestRunUnknownKindIsFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, personBinding())

	res := h.run(t, models.PushEntityTask("ministry", "1"))
	checkOutcome(t, res, OutcomeFatal)
	if !errors.Is(res.Err, binding.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", res.Err)
	}
}

func TestTransportErrorIsReturned(t *testing.T) {
	t.Parallel()
	h := newHarness(t, personBinding())
	h.save(t, personRecord("1", "Ada"))
	h.fake.FailNext("POST", "/entities", 500, `{"error":"boom"}`)

	_, err := h.syncer.Run(context.Background(), models.PushEntityTask("person", "1"))
	if !errors.Is(err, registry.ErrUnexpectedStatus) {
		t.Fatalf("Run() error = %v, want ErrUnexpectedStatus", err)
	}
	if h.get(t, "person", "1").MetaValue(binding.DefaultIDColumn) != "" {
		t.Error("remote id must not be set after a failed create")
	}
}

func TestResultString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		res  Result
		want string
	}{
		{pushed(""), "pushed"},
		{skipped("unchanged"), "skipped: unchanged"},
		{retry(ErrParentMissingRemoteID), "retry: parent has no remote id"},
		{fatal(ErrUnknownOp), "fatal: unknown task op"},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if !pushed("").Settled() || !skipped("").Settled() || retry(ErrEdgeExisted).Settled() {
		t.Error("Settled() mismatch")
	}
}
