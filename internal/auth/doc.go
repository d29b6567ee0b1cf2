// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package auth orchestrates storefront and back-office sign-in.

Service ties together the credential store, password hasher, login
throttle, lockout policy, session manager and audit trail. It is
constructed once per process and shared by every request handler.

Login Flow:

 1. The (action, identifier, IP) window is checked. A full window fails
    with ErrRateLimited and a synchronous audit event.
 2. The active account is looked up. An unknown identifier runs one hash
    verification against a fixed dummy digest, records the attempt and
    fails with ErrInvalidCredentials.
 3. A locked account runs the same dummy verification and fails with
    ErrAccountLocked. The throttle window is left untouched.
 4. A wrong secret increments the lockout counter, records the attempt and
    fails with ErrInvalidCredentials.
 5. A correct secret clears the counter and the window, rotates every
    session id the client held and issues a new slot record.

Every path performs exactly one hash verification, so an observer cannot
tell an unknown identifier from a wrong password by timing.

Roles:

	RoleCustomer (0) < RoleManager (1) < RoleAdmin (2) < RoleSuperAdmin (3)

Role.AtLeast is the single privilege comparison. Unknown role names parse
to RoleNone, which fails every check.

Errors:

Storage failures of any component become ErrStorageUnavailable, are
audited and are never retried. Callers match errors with errors.Is.
*/
package auth
