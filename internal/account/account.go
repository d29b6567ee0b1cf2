// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package account is the credential store: customer and admin accounts with
// their password digests and failed-login counters.
//
// The counter update used by the lockout policy is a single conditional
// statement in every backend. Callers never read the counter, add one and
// write it back.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")

	// ErrUnavailable wraps every backend failure: connection loss,
	// timeouts and an open circuit breaker.
	ErrUnavailable = errors.New("credential store unavailable")

	// ErrDuplicate is returned by Create when (kind, identifier) exists.
	ErrDuplicate = errors.New("account already exists")
)

// Kind separates storefront customers from back-office users.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindAdmin    Kind = "admin"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCustomer || k == KindAdmin
}

// Status is the administrative state of an account. Only active accounts
// can sign in.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Account is one credential record.
type Account struct {
	ID             int64
	Kind           Kind
	Identifier     string // email for customers, username for admins
	CredentialHash string
	Role           string // role name; parsed by the auth package
	Status         Status
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	CreatedAt      time.Time
}

// LockedAt reports whether the account is locked at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// FailureResult is the post-increment state returned by RecordFailure.
type FailureResult struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Store is the credential store contract.
type Store interface {
	// Lookup returns the active account of kind with identifier.
	Lookup(ctx context.Context, kind Kind, identifier string) (*Account, error)

	// Get returns the account with id regardless of status.
	Get(ctx context.Context, id int64) (*Account, error)

	// Create inserts a new account and returns its id.
	Create(ctx context.Context, a *Account) (int64, error)

	// RecordFailure increments failed_attempts and, in the same statement,
	// sets locked_until to lockUntil when the new count is at least
	// threshold and the account is not already locked past lockUntil.
	RecordFailure(ctx context.Context, id int64, threshold int, lockUntil time.Time) (FailureResult, error)

	// Reset clears failed_attempts and locked_until in one statement.
	Reset(ctx context.Context, id int64) error

	// TouchLogin stamps last_login_at.
	TouchLogin(ctx context.Context, id int64, at time.Time) error

	// UpdateHash replaces the stored digest, used when parameters change.
	UpdateHash(ctx context.Context, id int64, hash string) error

	// Locked lists accounts whose lock has not yet elapsed at now.
	Locked(ctx context.Context, now time.Time) ([]Account, error)
}
