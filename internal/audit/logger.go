// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// QueueSize is the capacity of the informational event queue.
	// Default: 256
	QueueSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// Recorder is the write side of the audit trail. Components depend on
// this rather than on *Logger.
type Recorder interface {
	Record(ctx context.Context, kind EventKind, meta Meta, data map[string]interface{}) error
}

// Trail is Recorder plus the typed helpers for common events. *Logger
// implements it.
type Trail interface {
	Recorder
	AuthAttempt(ctx context.Context, meta Meta, accountKind, identifier string, success bool, details map[string]interface{}) error
	Suspicious(ctx context.Context, meta Meta, activity string, details map[string]interface{}) error
	AdminAction(ctx context.Context, meta Meta, adminID int64, action string, details map[string]interface{}) error
}

// request is one unit of work for the writer goroutine. A nil event is a
// flush barrier.
type request struct {
	event *Event
	done  chan error
}

// Logger is the audit front end used by every security component.
type Logger struct {
	store Store
	now   func() time.Time

	queue  chan request
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLogger creates an audit logger writing to store and starts its writer.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	l := &Logger{
		store: store,
		now:   time.Now,
		queue: make(chan request, cfg.QueueSize),
	}

	l.wg.Add(1)
	go l.writer()

	return l
}

// writer persists queued events in arrival order.
func (l *Logger) writer() {
	defer l.wg.Done()

	for req := range l.queue {
		var err error
		if req.event != nil {
			err = l.write(req.event)
		}
		if req.done != nil {
			req.done <- err
		}
	}
}

func (l *Logger) write(event *Event) error {
	err := l.store.Append(event)
	metrics.RecordAuditEvent(string(event.Event), err)
	if err != nil {
		logging.Err(err).Str("event", string(event.Event)).Msg("Failed to write audit event")
		return err
	}
	return nil
}

// Record appends an event. Critical kinds return only after the event is
// on disk (or ctx is done); informational kinds return once queued.
func (l *Logger) Record(ctx context.Context, kind EventKind, meta Meta, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}
	event := &Event{
		Timestamp: l.now().UTC(),
		Event:     kind,
		IP:        meta.ip(),
		UserAgent: meta.userAgent(),
		Data:      data,
	}

	return l.submit(ctx, event, kind.IsCritical())
}

// submit hands a request to the writer. After Close the store is written
// directly so late events from in-flight requests are not lost.
func (l *Logger) submit(ctx context.Context, event *Event, wait bool) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		if event == nil {
			return nil
		}
		return l.write(event)
	}

	req := request{event: event}
	if wait {
		req.done = make(chan error, 1)
	}

	select {
	case l.queue <- req:
		l.mu.RUnlock()
	case <-ctx.Done():
		l.mu.RUnlock()
		if event != nil {
			logging.Warn().Str("event", string(event.Event)).Msg("Audit queue full, event dropped")
		}
		return ctx.Err()
	}

	if !wait {
		return nil
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every event queued before the call is written.
func (l *Logger) Flush(ctx context.Context) error {
	return l.submit(ctx, nil, true)
}

// Recent returns the last n events, newest first, after flushing the queue.
func (l *Logger) Recent(ctx context.Context, n int) ([]Event, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}
	return l.store.Recent(n)
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

// Helper methods for common audit events

// AuthAttempt records a login attempt for the given account kind.
func (l *Logger) AuthAttempt(ctx context.Context, meta Meta, accountKind, identifier string, success bool, details map[string]interface{}) error {
	kind := EventCustomerLoginFailed
	switch {
	case accountKind == "admin" && success:
		kind = EventAdminLoginSuccess
	case accountKind == "admin":
		kind = EventAdminLoginFailed
	case success:
		kind = EventCustomerLoginSuccess
	}

	data := map[string]interface{}{
		"identifier": identifier,
		"success":    success,
	}
	for k, v := range details {
		data[k] = v
	}
	return l.Record(ctx, kind, meta, data)
}

// Suspicious records activity that looks like probing or abuse.
func (l *Logger) Suspicious(ctx context.Context, meta Meta, activity string, details map[string]interface{}) error {
	return l.Record(ctx, EventSuspiciousActivity, meta, map[string]interface{}{
		"activity": activity,
		"details":  details,
	})
}

// AdminAction records an action performed through the admin area.
func (l *Logger) AdminAction(ctx context.Context, meta Meta, adminID int64, action string, details map[string]interface{}) error {
	return l.Record(ctx, EventAdminAction, meta, map[string]interface{}{
		"admin_id": adminID,
		"action":   action,
		"details":  details,
	})
}
