// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package ratelimit enforces per-client sliding-window request quotas.

# Architecture

The Limiter is a gateway pipeline stage that runs after authentication, so
the window identifier can prefer the authenticated user over the network
address. The timestamp bookkeeping lives behind the pluggable [Store]
interface with three implementations:

  - memory: single process, no persistence.
  - file:   per-host persistence, flock-guarded, survives restarts.
  - redis:  shared across replicas via sorted sets.

A true sliding window is used rather than fixed buckets: a client sending
its full quota in the last second of a bucket cannot double its rate by
sending again in the first second of the next.
*/
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/internal/platform/middleware"
	"github.com/relatadb/relata/internal/platform/sec"
)

// Limiter applies the configured window to incoming requests.
type Limiter struct {
	cfg   config.RateLimitConfig
	store Store
}

// NewLimiter constructs a [Limiter] over the chosen store.
func NewLimiter(cfg config.RateLimitConfig, store Store) *Limiter {
	return &Limiter{cfg: cfg, store: store}
}

// Enabled reports whether rate limiting is active.
func (l *Limiter) Enabled() bool {
	return l.cfg.Enabled
}

// Allow checks the request against its identifier's window.
//
// The returned [Decision] is valid in both outcomes so callers can emit
// the X-RateLimit-* headers on every response. The error is non-nil only
// when the request must be rejected (429) or the store failed.
func (l *Limiter) Allow(r *http.Request, principal *sec.Principal) (Decision, error) {
	if !l.cfg.Enabled {
		return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests}, nil
	}

	window := time.Duration(l.cfg.WindowSeconds) * time.Second
	now := time.Now()

	decision, err := l.store.Take(r.Context(), l.Identifier(r, principal), now, window, l.cfg.MaxRequests)
	if err != nil {
		return decision, err
	}

	if !decision.Allowed {
		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return decision, apperr.RateLimited(
			retryAfter, int(decision.ResetAt.Unix()), decision.Limit, l.cfg.WindowSeconds)
	}

	return decision, nil
}

// Identifier derives the window key for a request.
//
// # Precedence
//
//  1. Authenticated user: "user:<name>" so one account shares a quota
//     across devices and addresses.
//  2. API key presented but unresolved: "apikey:<sha256>" so keys are
//     never persisted verbatim in window storage.
//  3. Client IP: "ip:<addr>" honoring proxy headers only when configured.
func (l *Limiter) Identifier(r *http.Request, principal *sec.Principal) string {
	if principal != nil && principal.Method != sec.MethodAnonymous {
		return "user:" + principal.Username
	}

	key := r.Header.Get(constants.HeaderXAPIKey)
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if key != "" {
		return "apikey:" + sec.HashToken(key)
	}

	return "ip:" + middleware.RealIP(r, l.cfg.TrustProxyHeaders)
}

// WriteHeaders emits the X-RateLimit-* response headers.
//
// Emitted on every gateway response, allowed or denied, so clients can
// pace themselves before hitting the limit.
func (l *Limiter) WriteHeaders(w http.ResponseWriter, decision Decision) {
	if !l.cfg.Enabled {
		return
	}

	w.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	w.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	w.Header().Set(constants.HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
	w.Header().Set(constants.HeaderRateLimitWindow, strconv.Itoa(l.cfg.WindowSeconds))

	if !decision.Allowed {
		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
}
