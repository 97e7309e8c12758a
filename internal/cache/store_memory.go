// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memoryEntry is one cached value with its absolute expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process [Store].
//
// Expiry is lazy (checked on Get) plus a periodic sweep, so an idle
// process does not hold dead entries indefinitely.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	lastSweep time.Time
}

// NewMemoryStore constructs an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memoryEntry),
		lastSweep: time.Now(),
	}
}

// Get implements [Store].
func (store *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	store.mu.RLock()
	entry, ok := store.entries[key]
	store.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		store.mu.Lock()
		delete(store.entries, key)
		store.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements [Store].
func (store *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.sweep()
	store.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete implements [Store].
func (store *MemoryStore) Delete(_ context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.entries, key)
	return nil
}

// DeletePattern implements [Store] for "<prefix>*" patterns.
func (store *MemoryStore) DeletePattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")

	store.mu.Lock()
	defer store.mu.Unlock()
	for key := range store.entries {
		if strings.HasPrefix(key, prefix) {
			delete(store.entries, key)
		}
	}
	return nil
}

// Clear implements [Store].
func (store *MemoryStore) Clear(_ context.Context) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = make(map[string]memoryEntry)
	return nil
}

// sweep evicts expired entries at most once per minute. Callers hold the
// write lock.
func (store *MemoryStore) sweep() {
	now := time.Now()
	if now.Sub(store.lastSweep) < time.Minute {
		return
	}
	store.lastSweep = now

	for key, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, key)
		}
	}
}
