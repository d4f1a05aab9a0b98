// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
)

// CorrelationHeader carries the correlation id in and out. Tasks enqueued by
// a request inherit it, so queue logs line up with the request log.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationID takes the inbound correlation id or generates one, and puts
// it and a request logger on the context.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationHeader)
			if id == "" {
				id = logging.GenerateCorrelationID()
			}
			w.Header().Set(CorrelationHeader, id)

			ctx := logging.ContextWithCorrelationID(r.Context(), id)
			logger := logging.WithComponent("api").With().Str("correlation_id", id).Logger()
			ctx = logging.ContextWithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestMetrics counts requests by method, route pattern and status and logs
// each one at debug level.
func RequestMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.APIRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			logging.CtxDebug(r.Context()).Str("method", r.Method).Str("route", route).
				Int("status", status).Dur("duration", time.Since(start)).Msg("api request")
		})
	}
}

// RateLimit limits requests per client IP. A non-positive limit disables it.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.LimitByIP(requests, window)
}
