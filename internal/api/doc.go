// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package api is the HTTP surface of storeguard: a chi router exposing the
storefront and back-office sign-in routes, the anti-forgery token endpoint
and the admin security tools.

Routes:

	GET  /healthz                       liveness
	GET  /readyz                        readiness (credential store, rate-limit store)
	GET  /metrics                       Prometheus exposition
	GET  /csrf                          issue or return the CSRF token, starting a guest session if needed
	POST /login                         customer sign-in
	POST /logout                        customer sign-out
	GET  /me                            current customer
	POST /admin/login                   back-office sign-in
	POST /admin/logout                  back-office sign-out (manager)
	GET  /admin/me                      current back-office user (manager)
	GET  /admin/accounts/locked         accounts under lockout (admin)
	POST /admin/accounts/{id}/unlock    clear a lockout (admin)
	GET  /admin/security/events?limit=n recent audit events (super_admin)

Every mutating route passes the CSRF guard. Admin routes other than login
pass the route authorizer, which looks up the minimum role in the casbin
policy and checks it with auth.Service.RequireRole.

Error mapping:

	auth.ErrInvalidCredentials, auth.ErrAccountLocked  401 (identical bodies)
	auth.ErrRateLimited                                429
	session errors                                     401 "not authenticated"
	csrf failure                                       403
	auth.ErrForbidden                                  403
	auth.ErrStorageUnavailable                         503

All responses use the APIResponse envelope:

	{"success": false, "error": {"code": "UNAUTHORIZED", "message": "invalid credentials"}, "meta": {...}}
*/
package api
