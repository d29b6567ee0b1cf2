// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/logging"
)

// Public messages. Locked and unknown accounts deliberately share the
// invalid-credentials message.
const (
	msgInvalidCredentials = "invalid credentials"
	msgRateLimited        = "too many login attempts, try again later"
	msgForbidden          = "insufficient privileges"
	msgUnavailable        = "service temporarily unavailable"
)

// writeAuthError renders an error returned by auth.Service.
func writeAuthError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountLocked):
		rw.Unauthorized(msgInvalidCredentials)
	case errors.Is(err, auth.ErrRateLimited):
		rw.TooManyRequests(msgRateLimited)
	case auth.IsSessionError(err):
		rw.NotAuthenticated()
	case errors.Is(err, auth.ErrCSRFInvalid):
		rw.CSRFInvalid()
	case errors.Is(err, auth.ErrForbidden):
		rw.Forbidden(msgForbidden)
	case errors.Is(err, auth.ErrUnknownAccount):
		rw.NotFound("account not found")
	case errors.Is(err, auth.ErrStorageUnavailable):
		rw.ServiceUnavailable(msgUnavailable)
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Unhandled auth error")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
