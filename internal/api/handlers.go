// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/store"
)

// maxRecordBody caps PUT bodies.
const maxRecordBody = 1 << 20

// HealthStatus is the /health body.
type HealthStatus struct {
	Status       string `json:"status"`
	QueueRunning bool   `json:"queue_running"`
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	st := HealthStatus{Status: "ok", QueueRunning: rt.queue != nil && rt.queue.IsRunning()}
	code := http.StatusOK
	if !st.QueueRunning {
		st.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

func (rt *Router) listRecords(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	recs, err := rt.records.List(r.Context(), chi.URLParam(r, "kind"))
	if err != nil {
		rw.InternalError(err)
		return
	}
	if recs == nil {
		recs = []*models.Record{}
	}
	rw.List(recs, len(recs))
}

func (rt *Router) getRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rec, ok := rt.lookup(rw, r)
	if ok {
		rw.Success(rec)
	}
}

// putRecord saves the body as the record named by the path. Values sent for
// kind and id are replaced by the path; meta and updated_at are ignored.
func (rt *Router) putRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var rec models.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBody))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		rw.BadRequest("invalid record body: " + err.Error())
		return
	}
	rec.Kind = chi.URLParam(r, "kind")
	rec.ID = chi.URLParam(r, "id")
	rec.Meta = nil
	rec.UpdatedAt = time.Time{}

	err := rt.records.Save(r.Context(), &rec)
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	case err != nil && rec.UpdatedAt.IsZero():
		rw.InternalError(err)
		return
	case err != nil:
		// Committed, but a change hook failed.
		rw.Error(http.StatusBadGateway, ErrCodeDispatchFailed, "record saved; sync dispatch failed", err)
		return
	}
	rw.Success(&rec)
}

func (rt *Router) deleteRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	err := rt.records.Delete(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("record not found")
	case err != nil:
		rw.Error(http.StatusBadGateway, ErrCodeDispatchFailed, "delete failed", err)
	default:
		rw.NoContent()
	}
}

func (rt *Router) pushRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rec, ok := rt.lookup(rw, r)
	if !ok {
		return
	}
	err := rt.pusher.Push(r.Context(), rec)
	switch {
	case errors.Is(err, binding.ErrUnknownKind):
		rw.NotFound("no binding for kind " + rec.Kind)
	case err != nil:
		rw.Error(http.StatusBadGateway, ErrCodeDispatchFailed, "push could not be queued", err)
	default:
		rw.Accepted(map[string]string{"kind": rec.Kind, "id": rec.ID})
	}
}

func (rt *Router) lookup(rw *ResponseWriter, r *http.Request) (*models.Record, bool) {
	rec, err := rt.records.Get(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("record not found")
		return nil, false
	case err != nil:
		rw.InternalError(err)
		return nil, false
	}
	return rec, true
}
