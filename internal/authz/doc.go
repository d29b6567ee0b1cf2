// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package authz maps admin routes to the minimum role allowed to call them.
//
// The route table is a Casbin policy. Casbin only matches the request path
// and method to a rule; the privilege comparison itself is auth.Role.AtLeast,
// so the role order stays a compile-time property of the auth package.
//
// # Model
//
//	[request_definition]
//	r = obj, act
//
//	[policy_definition]
//	p = obj, act, role
//
//	[policy_effect]
//	e = some(where (p.eft == allow))
//
//	[matchers]
//	m = keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
//
// # Policy
//
//	p, /admin/me, GET, manager
//	p, /admin/accounts/:id/unlock, POST, admin
//	p, /admin/security/events, GET, super_admin
//
// Routes without a rule resolve to auth.RoleNone and are denied to everyone.
//
// # Usage
//
//	a, err := authz.New(authz.Config{})
//	minRole, err := a.MinimumRole("/admin/accounts/7/unlock", http.MethodPost)
//	if !principal.Role.AtLeast(minRole) { ... }
package authz
