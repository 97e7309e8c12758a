// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package cache

import (
	"context"
	"time"
)

// Store is the pluggable backing storage for cached response entries.
//
// Keys are opaque to the store; the manager encodes the table name into a
// key prefix so DeletePattern can invalidate one table at a time.
type Store interface {
	// Get returns the entry bytes, or ok=false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores the entry with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single entry; missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every entry whose key matches the glob pattern
	// (the manager only uses "<prefix>*" patterns).
	DeletePattern(ctx context.Context, pattern string) error

	// Clear removes all entries owned by this gateway.
	Clear(ctx context.Context) error
}
