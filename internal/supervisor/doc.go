// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

/*
Package supervisor runs the long-lived regsync services under suture v4.

	RootSupervisor ("regsync")
	├── DataSupervisor ("data-layer")
	│   └── StoreGCService
	├── SyncSupervisor ("sync-layer")
	│   └── QueueService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

Crashed services restart with suture's backoff. Supervisor events are logged
through sutureslog on the zerolog-backed slog handler, so restarts appear in
the same structured stream as everything else.

Context cancellation stops the tree; services get ShutdownTimeout to return
before they show up in UnstoppedServiceReport.
*/
package supervisor
