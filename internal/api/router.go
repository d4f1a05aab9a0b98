// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/models"
)

// RecordStore is the part of *store.Store the API uses.
type RecordStore interface {
	Get(ctx context.Context, kind, id string) (*models.Record, error)
	List(ctx context.Context, kind string) ([]*models.Record, error)
	Save(ctx context.Context, r *models.Record) error
	Delete(ctx context.Context, kind, id string) error
}

// Pusher enqueues a full push. *dispatch.Dispatcher implements it.
type Pusher interface {
	Push(ctx context.Context, rec *models.Record) error
}

// QueueState reports whether the task router is up. *queue.Queue implements it.
type QueueState interface {
	IsRunning() bool
}

// Router holds the API dependencies.
type Router struct {
	records RecordStore
	pusher  Pusher
	queue   QueueState
	cfg     config.ServerConfig
}

// NewRouter creates a Router.
func NewRouter(records RecordStore, pusher Pusher, queue QueueState, cfg config.ServerConfig) *Router {
	return &Router{records: records, pusher: pusher, queue: queue, cfg: cfg}
}

// Handler builds the chi route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(CorrelationID())
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetrics())

	r.Get("/health", rt.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/records/{kind}", func(r chi.Router) {
		r.Use(RateLimit(rt.cfg.RateLimitRequests, rt.cfg.RateLimitWindow))
		r.Get("/", rt.listRecords)
		r.Get("/{id}", rt.getRecord)
		r.Put("/{id}", rt.putRecord)
		r.Delete("/{id}", rt.deleteRecord)
		r.Post("/{id}/push", rt.pushRecord)
	})
	return r
}

// Server builds the http.Server for the supervisor's HTTP service.
func (rt *Router) Server() *http.Server {
	return &http.Server{
		Addr:              rt.cfg.Listen,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
