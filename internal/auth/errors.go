// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package auth

import "errors"

// Error kinds returned by Service. Lower packages define their own
// sentinels which Service maps onto these.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrRateLimited        = errors.New("too many login attempts")

	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionIPMismatch = errors.New("session ip mismatch")

	ErrCSRFInvalid = errors.New("csrf token invalid")
	ErrForbidden   = errors.New("insufficient privileges")

	// ErrStorageUnavailable wraps every backend failure. Logins fail closed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownAccount is returned by admin tools addressing a missing account.
	ErrUnknownAccount = errors.New("unknown account")
)

// IsSessionError reports whether err means the request carries no valid
// session for the requested slot.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionIPMismatch)
}
