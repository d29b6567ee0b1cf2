// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package logging

import "strings"

// SanitizeToken masks a token, showing only first and last 4 characters.
// Example: "9f86d081884c7d659a2f" -> "9f86...9a2f"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeSessionID masks a session ID. Session IDs are bearer credentials
// and must never appear in full in application logs.
func SanitizeSessionID(sessionID string) string {
	return SanitizeToken(sessionID)
}

// SanitizeIdentifier masks a login identifier. Email addresses keep their
// domain; usernames keep their first two characters.
// Example: "john.doe@example.com" -> "jo***@example.com"
func SanitizeIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}

	at := strings.Index(identifier, "@")
	if at < 0 {
		if len(identifier) <= 2 {
			return "***"
		}
		return identifier[:2] + "***"
	}
	if at == 0 {
		return "***"
	}

	local, domain := identifier[:at], identifier[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}

// Truncate shortens s to at most maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
