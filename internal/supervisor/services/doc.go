// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package services adapts regsync components to suture.Service.
//
// Each wrapper translates a component's own lifecycle (blocking Run,
// ListenAndServe/Shutdown, periodic work) into Serve(ctx) error and
// implements fmt.Stringer so suture logs a readable name.
//
//   - HTTPServerService: admin API (api layer)
//   - QueueService: Watermill task router (sync layer)
//   - StoreGCService: badger value log GC (data layer)
package services
