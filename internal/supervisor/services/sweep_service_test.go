// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*SweepService)(nil)

func TestSweepService_RunsOnInterval(t *testing.T) {
	var calls atomic.Int32
	svc := NewSweepService("test-sweeper", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("each sweep must run under a deadline")
		}
		calls.Add(1)
		return 3, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected several sweeps, got %d", calls.Load())
	}
}

func TestSweepService_ErrorsDoNotStopLoop(t *testing.T) {
	var calls atomic.Int32
	svc := NewSweepService("flaky", 10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("store unavailable")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = svc.Serve(ctx)

	if calls.Load() < 2 {
		t.Errorf("sweeps must continue after an error, got %d calls", calls.Load())
	}
}

func TestNewSweepService_Defaults(t *testing.T) {
	svc := NewSweepService("janitor", 0, func(context.Context) (int, error) { return 0, nil })
	if svc.interval != time.Minute || svc.timeout != time.Minute {
		t.Errorf("interval=%v timeout=%v, want 1m", svc.interval, svc.timeout)
	}
	if svc.String() != "janitor" {
		t.Errorf("String() = %q", svc.String())
	}
}
