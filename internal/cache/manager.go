// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package cache stores successful read responses and serves repeats without
touching the database.

# Architecture

The Manager is a gateway pipeline stage for read-class actions. Keys are
derived from the table, the action, and the normalized query string, so two
requests differing only in parameter order share one entry. Writes to a
table synchronously invalidate that table's entries BEFORE the success
response is sent; a client that receives a write acknowledgment and
immediately re-reads never sees the pre-write state from cache.

Entries live behind the pluggable [Store] interface (memory or redis).
*/
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/internal/platform/sec"
)

// Entry is one cached response body with its storage timestamp.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// Manager coordinates lookup, storage, and invalidation.
type Manager struct {
	cfg    config.CacheConfig
	store  Store
	logger *slog.Logger

	// excluded indexes the never-cache table list.
	excluded map[string]struct{}
}

// NewManager constructs a [Manager] over the chosen store.
func NewManager(cfg config.CacheConfig, store Store, logger *slog.Logger) *Manager {
	excluded := make(map[string]struct{}, len(cfg.ExcludeTables))
	for _, table := range cfg.ExcludeTables {
		if table != "" {
			excluded[table] = struct{}{}
		}
	}

	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(slog.String("component", "cache")),
		excluded: excluded,
	}
}

// Enabled reports whether caching is active.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// ShouldCache reports whether responses for the table are cacheable.
func (m *Manager) ShouldCache(table string) bool {
	if !m.cfg.Enabled {
		return false
	}
	_, excluded := m.excluded[table]
	return !excluded
}

// # Key Derivation

// Key derives the cache key for one read request.
//
// The query is normalized (credential parameters stripped, keys and values
// sorted) so parameter order does not fragment the cache. The principal
// contributes only when configuration says responses vary per caller.
func (m *Manager) Key(table, action string, query url.Values, principal *sec.Principal) string {
	normalized := normalizeQuery(query)

	var vary []string
	for _, dimension := range m.cfg.VaryBy {
		switch dimension {
		case "user_id":
			if principal != nil {
				vary = append(vary, "user="+principal.Username)
			}
		case "api_key":
			if principal != nil && principal.Method == sec.MethodAPIKey {
				vary = append(vary, "key="+principal.Username)
			}
		}
	}

	digest := sec.HashToken(action + "|" + normalized + "|" + strings.Join(vary, "|"))
	return constants.CacheKeyPrefix + table + ":" + digest
}

// normalizeQuery renders a canonical form of the query string.
func normalizeQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for key := range query {
		// Credentials and the action selector never belong in cache keys.
		if key == "api_key" || key == "action" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			sb.WriteString(key)
			sb.WriteByte('=')
			sb.WriteString(value)
			sb.WriteByte('&')
		}
	}
	return sb.String()
}

// # Lookup and Storage

// Lookup fetches the entry for key. Store failures degrade to a miss so a
// broken cache backend never takes reads down with it.
func (m *Manager) Lookup(ctx context.Context, key string) (*Entry, bool) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache_lookup_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is dropped, not served.
		_ = m.store.Delete(ctx, key)
		return nil, false
	}
	return &entry, true
}

// Put stores a response payload under key with the table's TTL. It reports
// whether the entry was actually written.
func (m *Manager) Put(ctx context.Context, table, key string, payload []byte) bool {
	entry := Entry{Payload: payload, StoredAt: time.Now()}

	raw, err := json.Marshal(entry)
	if err != nil {
		m.logger.Warn("cache_encode_failed", slog.String("table", table))
		return false
	}

	if err := m.store.Set(ctx, key, raw, m.TTL(table)); err != nil {
		m.logger.Warn("cache_store_failed",
			slog.String("table", table),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// TTL returns the table's entry lifetime, honoring per-table overrides.
func (m *Manager) TTL(table string) time.Duration {
	if seconds, ok := m.cfg.TableTTLs[table]; ok {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(m.cfg.TTLSeconds) * time.Second
}

// # Invalidation

// InvalidateTable drops every cached entry for the table.
//
// Called synchronously before a write's success response; an invalidation
// failure is returned so the caller can refuse to acknowledge the write
// with stale reads still live.
func (m *Manager) InvalidateTable(ctx context.Context, table string) error {
	if !m.cfg.Enabled {
		return nil
	}

	if err := m.store.DeletePattern(ctx, constants.CacheKeyPrefix+table+":*"); err != nil {
		return fmt.Errorf("cache: invalidate table %s: %w", table, err)
	}

	m.logger.Debug("cache_invalidated", slog.String("table", table))
	return nil
}

// InvalidateAll drops every cached entry.
func (m *Manager) InvalidateAll(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	return m.store.Clear(ctx)
}

// # Response Headers

// WriteHeaders emits the X-Cache-Hit and X-Cache-TTL headers for a
// cacheable response, hit or miss.
func (m *Manager) WriteHeaders(w http.ResponseWriter, table string, entry *Entry) {
	if !m.cfg.Enabled {
		return
	}

	w.Header().Set(constants.HeaderCacheTTL, strconv.Itoa(int(m.TTL(table).Seconds())))
	if entry == nil {
		w.Header().Set(constants.HeaderCacheHit, "false")
		return
	}
	w.Header().Set(constants.HeaderCacheHit, "true")
}

// WriteStored marks a response whose body was just written to the store.
func (m *Manager) WriteStored(w http.ResponseWriter) {
	w.Header().Set(constants.HeaderCacheStored, "true")
}
