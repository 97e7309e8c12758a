// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/constants"
)

// RedisStore is the multi-replica [Store]: every gateway instance shares
// one cache, and invalidation on one instance is visible to all.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a [RedisStore] over a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements [Store].
func (store *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := store.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, apperr.Upstream(fmt.Errorf("cache: redis get: %w", err))
	}
	return value, true, nil
}

// Set implements [Store].
func (store *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := store.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Upstream(fmt.Errorf("cache: redis set: %w", err))
	}
	return nil
}

// Delete implements [Store].
func (store *RedisStore) Delete(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return apperr.Upstream(fmt.Errorf("cache: redis delete: %w", err))
	}
	return nil
}

// DeletePattern implements [Store] using incremental SCAN so invalidation
// never blocks the Redis server the way KEYS would.
func (store *RedisStore) DeletePattern(ctx context.Context, pattern string) error {
	iter := store.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())

		// Delete in batches to bound both the command size and the time
		// stale entries survive a long scan.
		if len(keys) == 100 {
			if err := store.client.Del(ctx, keys...).Err(); err != nil {
				return apperr.Upstream(fmt.Errorf("cache: redis pattern delete: %w", err))
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return apperr.Upstream(fmt.Errorf("cache: redis scan: %w", err))
	}

	if len(keys) > 0 {
		if err := store.client.Del(ctx, keys...).Err(); err != nil {
			return apperr.Upstream(fmt.Errorf("cache: redis pattern delete: %w", err))
		}
	}
	return nil
}

// Clear implements [Store] by deleting every key under the gateway's
// cache prefix (never FLUSHDB: the database may be shared).
func (store *RedisStore) Clear(ctx context.Context) error {
	return store.DeletePattern(ctx, constants.CacheKeyPrefix+"*")
}
