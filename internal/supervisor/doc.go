// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package supervisor runs the long-lived parts of Storeguard under suture v4.

The tree has two layers:

	RootSupervisor ("storeguard")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── SweepService "session-sweeper"
	│   ├── SweepService "ratelimit-sweeper" (memory backend only)
	│   └── SweepService "session-gc" (badger backend only)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with suture's backoff. Supervisor events
are logged through sutureslog, bridged to zerolog by logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMaintenanceService(services.NewSweepService("session-sweeper", interval, sessions.Sweep))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

See the services subpackage for the service wrappers.
*/
package supervisor
