// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package session manages server-side session records.
//
// A client holds up to three records, each behind its own cookie:
//
//   - guest: the transport session, issued on first contact. It carries the
//     CSRF token and is not bound to an IP.
//   - customer and admin: authenticated slots created on login, each bound
//     to the origin IP of the login request and valid for a fixed lifetime
//     measured from issue time.
//
// The two authenticated slots are independent. Logging out of one leaves
// the other intact; when neither remains the transport session is
// destroyed as well.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the token.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when the record outlived its lifetime.
	ErrExpired = errors.New("session expired")

	// ErrIPMismatch is returned when the request IP differs from the bound IP.
	ErrIPMismatch = errors.New("session ip mismatch")

	// ErrUnavailable wraps session store failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Kind names a session slot.
type Kind string

const (
	KindGuest    Kind = "guest"
	KindCustomer Kind = "customer"
	KindAdmin    Kind = "admin"
)

// Authenticated reports whether k is a login slot.
func (k Kind) Authenticated() bool {
	return k == KindCustomer || k == KindAdmin
}

// Token is the anti-forgery token bound to a record.
type Token struct {
	Value    string    `json:"value"`
	IssuedAt time.Time `json:"issued_at"`
}

// Principal identifies who an authenticated record belongs to.
type Principal struct {
	Kind       Kind
	AccountID  int64
	Identifier string
	Role       string
}

// Record is one stored session.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	AccountID  int64     `json:"account_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Role       string    `json:"role,omitempty"`
	OriginIP   string    `json:"origin_ip"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	CSRF       *Token    `json:"csrf,omitempty"`
}

// Principal returns the identity carried by the record.
func (r *Record) Principal() Principal {
	return Principal{Kind: r.Kind, AccountID: r.AccountID, Identifier: r.Identifier, Role: r.Role}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.CSRF != nil {
		tok := *r.CSRF
		c.CSRF = &tok
	}
	return &c
}

// idBytes is the entropy of a session identifier: 256 bits, hex encoded.
const idBytes = 32

// NewID returns a fresh random session identifier.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
