// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_LimiterWindow(t *testing.T) {
	store, _ := newTestRedisStore(t)
	l, clock := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if ok, err := l.Admit(ctx, loginKey); err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
		}
		if err := l.Record(ctx, loginKey); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok, _ := l.Admit(ctx, loginKey); ok {
		t.Fatal("6th attempt should be denied")
	}

	clock.Advance(900 * time.Second)
	if ok, _ := l.Admit(ctx, loginKey); !ok {
		t.Fatal("attempt should be admitted after the window")
	}
}

func TestRedisStore_ExpiryAndClear(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.Add(ctx, "k", now, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "k"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}

	// Two attempts in the same millisecond must both count.
	_ = store.Add(ctx, "k", now, time.Minute)
	if n, _ := store.Count(ctx, "k", now.Add(-time.Second)); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	if err := store.Clear(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(redisKeyPrefix + "k") {
		t.Error("key should be deleted")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	l := New(store, DefaultConfig())
	ok, err := l.Admit(context.Background(), loginKey)
	if ok || err == nil {
		t.Errorf("Admit with dead redis = %v, %v; want false and error", ok, err)
	}
}

func TestConnectRedis(t *testing.T) {
	c, err := ConnectRedis("redis://:pw@127.0.0.1:6380/2", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Options().Addr != "127.0.0.1:6380" || c.Options().DB != 2 {
		t.Errorf("unexpected options: %+v", c.Options())
	}
	_ = c.Close()

	c, err = ConnectRedis("127.0.0.1:6379", "secret", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Options().Password != "secret" {
		t.Error("password not applied")
	}
	_ = c.Close()
}
