// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package session

import (
	"context"
	"sync"
	"time"
)

// Store is the session persistence contract: get, set and destroy keyed by
// session id.
type Store interface {
	// Get returns a copy of the record. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Set inserts or replaces the record.
	Set(ctx context.Context, rec *Record) error

	// Update applies fn to the stored record and writes the result back
	// in one step. It returns ErrNotFound if the record is absent and never
	// recreates a destroyed record. An error from fn aborts the write.
	Update(ctx context.Context, id string, fn func(*Record) error) error

	// Destroy removes the record. Destroying an absent id is not an error.
	Destroy(ctx context.Context, id string) error

	// DeleteExpired removes records whose ExpiresAt is before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is an in-memory Store.
// Suitable for development, testing and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.ID = id
	s.records[id] = next
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, rec := range s.records {
		if rec.ExpiresAt.Before(now) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
