// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package testinfra provides test infrastructure for integration testing with containers.
//
// It starts throwaway PostgreSQL and Redis containers with testcontainers-go so
// the credential store and the rate-limit store can be exercised against the
// real servers they run on in production:
//
//	func TestSQLStore_Postgres(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg.Container)
//
//	    db, err := account.Open(ctx, account.DBConfig{Driver: "pgx", DSN: pg.DSN})
//	    // ...
//	}
//
// All files carry the integration build tag:
//
//	go test -tags integration ./...
//
// Tests are skipped gracefully if Docker is unavailable.
package testinfra
