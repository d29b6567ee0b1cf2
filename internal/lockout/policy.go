// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package lockout applies escalating account locks from persisted
// failed-login counters.
//
// State machine:
//
//	NORMAL --(failed_attempts reaches Threshold)--> LOCKED
//	LOCKED --(locked_until elapses, or Unlock)--> NORMAL
//
// The counter is not reset when a lock elapses. Only a successful login or
// an explicit unlock clears it, so the first failure after an elapsed lock
// locks the account again.
package lockout

import (
	"context"
	"time"

	"github.com/tomtom215/storeguard/internal/account"
)

// Config holds lockout settings.
type Config struct {
	// Threshold is the failure count at which the account locks. The
	// Threshold-th consecutive failure is the one that locks. Default: 5
	Threshold int

	// Duration is how long a lock lasts. Default: 30m
	Duration time.Duration
}

// DefaultConfig returns 5 failures / 30 minutes.
func DefaultConfig() Config {
	return Config{Threshold: 5, Duration: 30 * time.Minute}
}

// LockState describes an account's lock after an operation.
type LockState struct {
	Locked         bool
	FailedAttempts int
	LockedUntil    *time.Time

	// Engaged is true when this call set or extended the lock.
	Engaged bool
}

// Policy records failures and successes against the credential store.
type Policy struct {
	store account.Store
	cfg   Config
	now   func() time.Time
}

// New creates a Policy over store.
func New(store account.Store, cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	return &Policy{store: store, cfg: cfg, now: time.Now}
}

// WithClock replaces the policy's time source. Used by tests.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Config returns the active settings.
func (p *Policy) Config() Config {
	return p.cfg
}

// OnFailure atomically increments the account's failure counter and locks
// it once the new count reaches Threshold. An existing lock that ends later
// than now+Duration is never shortened.
func (p *Policy) OnFailure(ctx context.Context, accountID int64) (LockState, error) {
	now := p.now()
	until := now.Add(p.cfg.Duration)

	res, err := p.store.RecordFailure(ctx, accountID, p.cfg.Threshold, until)
	if err != nil {
		return LockState{}, err
	}

	state := LockState{
		FailedAttempts: res.FailedAttempts,
		LockedUntil:    res.LockedUntil,
		Locked:         res.LockedUntil != nil && now.Before(*res.LockedUntil),
	}
	// Stores may keep second precision.
	state.Engaged = res.LockedUntil != nil && res.LockedUntil.Unix() == until.Unix()
	return state, nil
}

// OnSuccess clears the failure counter and any lock in one update.
func (p *Policy) OnSuccess(ctx context.Context, accountID int64) error {
	return p.store.Reset(ctx, accountID)
}

// Unlock is the explicit admin action. It has the same effect as OnSuccess.
func (p *Policy) Unlock(ctx context.Context, accountID int64) error {
	return p.store.Reset(ctx, accountID)
}

// Locked lists accounts currently locked.
func (p *Policy) Locked(ctx context.Context) ([]account.Account, error) {
	return p.store.Locked(ctx, p.now())
}

// State derives the lock state of an already-loaded account.
func State(a *account.Account, now time.Time) LockState {
	return LockState{
		Locked:         a.LockedAt(now),
		FailedAttempts: a.FailedAttempts,
		LockedUntil:    a.LockedUntil,
	}
}

// State derives the lock state of a at the policy's current time.
func (p *Policy) State(a *account.Account) LockState {
	return State(a, p.now())
}
