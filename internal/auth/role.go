// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package auth

import "strings"

// Role is a position on the privilege scale. Higher values include the
// privileges of lower ones.
type Role int

const (
	// RoleNone is assigned to unknown role names and never satisfies a check.
	RoleNone Role = iota - 1
	RoleCustomer
	RoleManager
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleNone:       "none",
	RoleCustomer:   "customer",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

// ParseRole maps a stored role name to a Role.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "customer":
		return RoleCustomer
	case "manager":
		return RoleManager
	case "admin":
		return RoleAdmin
	case "super_admin", "superadmin":
		return RoleSuperAdmin
	default:
		return RoleNone
	}
}

// String returns the stored name of r.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return roleNames[RoleNone]
}

// AtLeast reports whether r grants everything minRole grants.
func (r Role) AtLeast(minRole Role) bool {
	if r == RoleNone || minRole == RoleNone {
		return false
	}
	return r >= minRole
}
