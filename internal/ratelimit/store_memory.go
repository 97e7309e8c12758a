// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps per-identifier timestamp lists in process memory.
//
// Suitable for single-instance deployments; a multi-replica gateway needs
// the redis store so all replicas share one window.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	// lastSweep bounds how often the full-map cleanup runs.
	lastSweep time.Time
}

// NewMemoryStore constructs an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:   make(map[string][]time.Time),
		lastSweep: time.Now(),
	}
}

// Take implements [Store].
func (store *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.sweep(now, window)

	timestamps := prune(store.windows[key], now.Add(-window))
	decision := decide(timestamps, now, window, max)

	if decision.Allowed {
		timestamps = append(timestamps, now)
	}

	if len(timestamps) == 0 {
		delete(store.windows, key)
	} else {
		store.windows[key] = timestamps
	}

	return decision, nil
}

// sweep evicts identifiers whose entire window has expired, at most once
// per minute, so idle keys do not accumulate forever.
func (store *MemoryStore) sweep(now time.Time, window time.Duration) {
	if now.Sub(store.lastSweep) < time.Minute {
		return
	}
	store.lastSweep = now

	windowStart := now.Add(-window)
	for key, timestamps := range store.windows {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(windowStart) {
			delete(store.windows, key)
		}
	}
}
