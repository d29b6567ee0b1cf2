// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package lockout

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/tomtom215/storeguard/internal/account"
)

// TestPolicy_LockMonotonicity drives random interleavings of failures,
// successes and clock advances and checks that a failure never moves
// locked_until earlier and that the account is locked exactly when the
// counter has reached the threshold during the current lock window.
func TestPolicy_LockMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 8).Draw(t, "threshold")
		duration := time.Duration(rapid.IntRange(1, 120).Draw(t, "durationMin")) * time.Minute

		store := account.NewMemoryStore()
		id, _ := store.Create(context.Background(), &account.Account{Kind: account.KindCustomer, Identifier: "p", CredentialHash: "x"})
		clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		p := New(store, Config{Threshold: threshold, Duration: duration}).WithClock(clock.Now)
		ctx := context.Background()

		count := 0
		var lastUntil *time.Time

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1, 2:
				st, err := p.OnFailure(ctx, id)
				if err != nil {
					t.Fatalf("OnFailure: %v", err)
				}
				count++
				if st.FailedAttempts != count {
					t.Fatalf("FailedAttempts = %d, want %d", st.FailedAttempts, count)
				}
				if lastUntil != nil && (st.LockedUntil == nil || st.LockedUntil.Before(*lastUntil)) {
					t.Fatalf("lock shortened from %v to %v", lastUntil, st.LockedUntil)
				}
				if (count >= threshold) != st.Locked {
					t.Fatalf("count %d threshold %d but Locked=%v", count, threshold, st.Locked)
				}
				lastUntil = st.LockedUntil
			case 3:
				if err := p.OnSuccess(ctx, id); err != nil {
					t.Fatalf("OnSuccess: %v", err)
				}
				count = 0
				lastUntil = nil
			case 4:
				clock.Advance(time.Duration(rapid.IntRange(0, 180).Draw(t, "advanceMin")) * time.Minute)
			}
		}
	})
}
