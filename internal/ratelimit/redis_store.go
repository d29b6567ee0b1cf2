// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore keeps attempt windows in Redis sorted sets scored by
// millisecond timestamps, so several server processes share one window.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis builds a client from a redis:// URL or a host:port address.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, key string, cutoff time.Time) (int, error) {
	redisKey := redisKeyPrefix + key

	var card *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff.UnixMilli(), 10))
		card = p.ZCard(ctx, redisKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return int(card.Val()), nil
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	redisKey := redisKeyPrefix + key

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: uuid.NewString(),
		})
		p.PExpire(ctx, redisKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}
