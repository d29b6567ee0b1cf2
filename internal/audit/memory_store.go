// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package audit

import "sync"

// MemoryStore keeps events in memory. Used in tests and when the audit
// path is not writable in development.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of event.
func (s *MemoryStore) Append(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// Recent returns up to n events, newest first.
func (s *MemoryStore) Recent(n int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return []Event{}, nil
	}
	if n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Kinds returns the kinds of all stored events in write order.
func (s *MemoryStore) Kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Event
	}
	return kinds
}
