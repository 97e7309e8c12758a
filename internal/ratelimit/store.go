// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one sliding-window check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the configured window capacity.
	Limit int

	// Remaining is the capacity left after this request.
	Remaining int

	// ResetAt is when the oldest recorded hit leaves the window.
	ResetAt time.Time

	// RetryAfter is the wait before the next request would be allowed.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Store records request timestamps per identifier and enforces the
// sliding-window capacity.
//
// # Contract
//
// Take drops timestamps older than now-window, then either records the hit
// (when under max) or denies without recording. Denied requests never
// consume capacity, so a client hammering a full window cannot push its own
// reset further into the future.
type Store interface {
	Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Decision, error)
}

// decide computes a [Decision] from the pruned timestamp list, shared by
// the memory and file stores. timestamps must be sorted ascending and
// already pruned to the window.
func decide(timestamps []time.Time, now time.Time, window time.Duration, max int) Decision {
	decision := Decision{Limit: max}

	if len(timestamps) >= max {
		oldest := timestamps[0]
		decision.ResetAt = oldest.Add(window)
		decision.RetryAfter = decision.ResetAt.Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
		return decision
	}

	decision.Allowed = true
	decision.Remaining = max - len(timestamps) - 1

	// After recording, the oldest entry (or this hit) bounds the reset.
	if len(timestamps) > 0 {
		decision.ResetAt = timestamps[0].Add(window)
	} else {
		decision.ResetAt = now.Add(window)
	}
	return decision
}

// prune drops timestamps at or before the window start, preserving order.
func prune(timestamps []time.Time, windowStart time.Time) []time.Time {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	return kept
}
