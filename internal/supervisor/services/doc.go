// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package services adapts Storeguard components to suture.Service.

	type Service interface {
	    Serve(ctx context.Context) error
	}

HTTPServerService wraps *http.Server: ListenAndServe in a goroutine,
graceful Shutdown on cancellation, http.ErrServerClosed swallowed.

SweepService runs a SweepFunc on a ticker. It backs the session sweeper
(session.Manager.Sweep), the in-memory rate-limit window sweeper and the
Badger value log collector. Sweep errors are logged, not returned, so a
flaky backend does not push the maintenance layer into backoff.

Every wrapper implements fmt.Stringer so supervisor events carry a
readable service name.
*/
package services
