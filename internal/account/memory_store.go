// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package account

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Every method holds one mutex, which makes RecordFailure atomic.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*Account
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]*Account)}
}

func (s *MemoryStore) Lookup(_ context.Context, kind Kind, identifier string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Kind == kind && a.Identifier == identifier && a.Status == StatusActive {
			return cloneAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) Create(_ context.Context, a *Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Kind == a.Kind && existing.Identifier == a.Identifier {
			return 0, ErrDuplicate
		}
	}

	s.nextID++
	stored := cloneAccount(a)
	stored.ID = s.nextID
	if stored.Status == "" {
		stored.Status = StatusActive
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.accounts[stored.ID] = stored
	return stored.ID, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, id int64, threshold int, lockUntil time.Time) (FailureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return FailureResult{}, ErrNotFound
	}

	a.FailedAttempts++
	if a.FailedAttempts >= threshold && (a.LockedUntil == nil || a.LockedUntil.Before(lockUntil)) {
		until := lockUntil
		a.LockedUntil = &until
	}
	return FailureResult{FailedAttempts: a.FailedAttempts, LockedUntil: cloneTime(a.LockedUntil)}, nil
}

func (s *MemoryStore) Reset(_ context.Context, id int64) error {
	return s.update(id, func(a *Account) {
		a.FailedAttempts = 0
		a.LockedUntil = nil
	})
}

func (s *MemoryStore) TouchLogin(_ context.Context, id int64, at time.Time) error {
	return s.update(id, func(a *Account) {
		a.LastLoginAt = &at
	})
}

func (s *MemoryStore) UpdateHash(_ context.Context, id int64, hash string) error {
	return s.update(id, func(a *Account) {
		a.CredentialHash = hash
	})
}

// SetStatus changes an account's status. Used by tests.
func (s *MemoryStore) SetStatus(id int64, status Status) error {
	return s.update(id, func(a *Account) {
		a.Status = status
	})
}

func (s *MemoryStore) Locked(_ context.Context, now time.Time) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Account
	for _, a := range s.accounts {
		if a.LockedAt(now) {
			out = append(out, *cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) update(id int64, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	return nil
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.LockedUntil = cloneTime(a.LockedUntil)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
