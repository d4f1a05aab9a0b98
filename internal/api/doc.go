// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

/*
Package api serves the regsync admin and ingest HTTP API on chi.

Routes:

	GET    /health                       queue router state
	GET    /metrics                      Prometheus exposition
	GET    /v1/records/{kind}            list stored records of a kind
	GET    /v1/records/{kind}/{id}       one stored record
	PUT    /v1/records/{kind}/{id}       save a record; change hooks enqueue sync tasks
	DELETE /v1/records/{kind}/{id}       delete a record; hooks enqueue remote deletes
	POST   /v1/records/{kind}/{id}/push  enqueue a full push of the record

The /v1 routes are rate limited per client IP with go-chi/httprate.
Every response under /v1 uses the APIResponse envelope.
*/
package api
