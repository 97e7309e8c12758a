// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/constants"
)

// RedisStore keeps each identifier's window as a sorted set scored by
// hit time, so every gateway replica shares one window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a [RedisStore] over a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Take implements [Store].
//
// Members are scored by unix-nano hit time; the member value itself is a
// UUID so simultaneous hits at the same nanosecond remain distinct entries.
func (store *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	redisKey := constants.RateLimitKeyPrefix + key
	windowStart := now.Add(-window)

	// 1. Drop expired hits and count the survivors in one round-trip.
	pipe := store.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, apperr.Upstream(fmt.Errorf("ratelimit: redis window prune: %w", err))
	}

	count := int(countCmd.Val())

	// 2. Full window: deny and report when the oldest hit expires.
	if count >= max {
		oldest, err := store.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err != nil {
			return Decision{}, apperr.Upstream(fmt.Errorf("ratelimit: redis oldest hit: %w", err))
		}

		decision := Decision{Limit: max, ResetAt: now.Add(window)}
		if len(oldest) > 0 {
			decision.ResetAt = time.Unix(0, int64(oldest[0].Score)).Add(window)
		}
		decision.RetryAfter = decision.ResetAt.Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
		return decision, nil
	}

	// 3. Record the hit and refresh the key TTL.
	record := store.client.TxPipeline()
	record.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	oldestCmd := record.ZRangeWithScores(ctx, redisKey, 0, 0)
	record.Expire(ctx, redisKey, window)
	if _, err := record.Exec(ctx); err != nil {
		return Decision{}, apperr.Upstream(fmt.Errorf("ratelimit: redis window record: %w", err))
	}

	decision := Decision{
		Allowed:   true,
		Limit:     max,
		Remaining: max - count - 1,
		ResetAt:   now.Add(window),
	}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		decision.ResetAt = time.Unix(0, int64(oldest[0].Score)).Add(window)
	}
	return decision, nil
}
