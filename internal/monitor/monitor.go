// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package monitor tracks gateway health and raises threshold alerts.

# Architecture

Every request deposits one [Sample] after its response is written. The
Monitor aggregates counters and latency extremes in process memory, exports
them to Prometheus, and evaluates alert thresholds inline (alert dispatch
itself is asynchronous and throttled, so a flapping metric cannot flood the
handlers).

The health score is a 0-100 composite: deductions for a high error rate
over the last window, slow responses, and any recent critical alert. The
/health endpoint maps the score to healthy (>=80), degraded (50-79), or
critical (<50).
*/
package monitor

import (
	"sync"
	"time"

	"github.com/relatadb/relata/internal/platform/config"
)

// Health states derived from the composite score.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
)

// Score deductions and thresholds for the composite health score.
const (
	deductErrorRate    = 30
	deductResponseTime = 20
	deductCritical     = 25

	criticalAlertWindow = 5 * time.Minute

	healthyFloor  = 80
	degradedFloor = 50

	// minWindowSamples is the sample floor below which rate thresholds
	// are not evaluated; a single early failure must not trip alerts.
	minWindowSamples = 10
)

// Sample is one finished request's contribution to the metrics.
type Sample struct {
	Action      string
	Table       string
	Status      int
	Latency     time.Duration
	CacheHit    bool
	AuthFailure bool
	RateLimited bool
}

// Stats is a point-in-time snapshot served by the health action.
type Stats struct {
	UptimeSeconds   int64         `json:"uptime_seconds"`
	TotalRequests   int64         `json:"total_requests"`
	TotalErrors     int64         `json:"total_errors"`
	ErrorRate       float64       `json:"error_rate"`
	StatusCounts    map[int]int64 `json:"status_counts"`
	AuthFailures    int64         `json:"auth_failures"`
	RateLimitedHits int64         `json:"rate_limited_hits"`
	CacheHits       int64         `json:"cache_hits"`

	MinLatencyMS float64 `json:"min_latency_ms"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	MaxLatencyMS float64 `json:"max_latency_ms"`

	HealthScore int    `json:"health_score"`
	State       string `json:"state"`
}

// windowStats aggregates one rolling-window bucket.
type windowStats struct {
	start       time.Time
	total       int64
	errors      int64
	authFails   int64
	rateLimited int64
	latencySum  time.Duration
	minLatency  time.Duration
	maxLatency  time.Duration
}

// add folds one sample into the bucket.
func (w *windowStats) add(sample Sample) {
	w.total++
	w.latencySum += sample.Latency
	if sample.Status >= 400 {
		w.errors++
	}
	if sample.AuthFailure {
		w.authFails++
	}
	if sample.RateLimited {
		w.rateLimited++
	}
	if w.minLatency == 0 || sample.Latency < w.minLatency {
		w.minLatency = sample.Latency
	}
	if sample.Latency > w.maxLatency {
		w.maxLatency = sample.Latency
	}
}

// Monitor aggregates request metrics and drives alert evaluation.
//
// Lifetime counters feed the stats snapshot; rate and latency thresholds
// are evaluated over a rolling window (the current bucket plus the
// immediately preceding one), so an early error burst ages out instead of
// depressing the health score forever.
type Monitor struct {
	cfg       config.MonitorConfig
	alerter   *Alerter
	exporter  *Exporter
	startedAt time.Time
	now       func() time.Time

	mu              sync.Mutex
	total           int64
	errors          int64
	statusCounts    map[int]int64
	authFailures    int64
	rateLimitedHits int64
	cacheHits       int64

	window   windowStats
	previous windowStats

	lastCriticalAlert time.Time
}

// New constructs a [Monitor]. alerter and exporter may be nil, which
// disables dispatch and Prometheus export respectively.
func New(cfg config.MonitorConfig, alerter *Alerter, exporter *Exporter) *Monitor {
	return &Monitor{
		cfg:          cfg,
		alerter:      alerter,
		exporter:     exporter,
		startedAt:    time.Now(),
		now:          time.Now,
		statusCounts: make(map[int]int64),
	}
}

// Enabled reports whether monitoring is active.
func (m *Monitor) Enabled() bool {
	return m.cfg.Enabled
}

// # Sample Recording

// Record folds one sample into the aggregates and evaluates thresholds.
func (m *Monitor) Record(sample Sample) {
	if !m.cfg.Enabled {
		return
	}

	m.mu.Lock()

	m.rollLocked(m.now())

	m.total++
	m.statusCounts[sample.Status]++
	if sample.Status >= 400 {
		m.errors++
	}
	if sample.AuthFailure {
		m.authFailures++
	}
	if sample.RateLimited {
		m.rateLimitedHits++
	}
	if sample.CacheHit {
		m.cacheHits++
	}

	m.window.add(sample)

	alerts := m.evaluateLocked()
	m.mu.Unlock()

	if m.exporter != nil {
		m.exporter.Observe(sample)
	}
	if m.alerter != nil {
		for _, alert := range alerts {
			m.alerter.Raise(alert)
		}
	}
}

// # Window Rotation

// windowLength returns the configured rolling-window duration.
func (m *Monitor) windowLength() time.Duration {
	if m.cfg.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(m.cfg.WindowSeconds) * time.Second
}

// rollLocked rotates the window buckets once the current one has run its
// length. After a quiet gap of two window lengths both buckets are stale
// and the previous one is discarded outright. Callers hold the mutex.
func (m *Monitor) rollLocked(now time.Time) {
	length := m.windowLength()

	if m.window.start.IsZero() {
		m.window.start = now
		return
	}
	if now.Sub(m.window.start) < length {
		return
	}

	if now.Sub(m.window.start) >= 2*length {
		m.previous = windowStats{}
	} else {
		m.previous = m.window
	}
	m.window = windowStats{start: now}
}

// recentLocked combines the current and previous buckets, approximating a
// sliding window of one to two window lengths. Callers hold the mutex.
func (m *Monitor) recentLocked() windowStats {
	combined := m.window
	combined.total += m.previous.total
	combined.errors += m.previous.errors
	combined.authFails += m.previous.authFails
	combined.rateLimited += m.previous.rateLimited
	combined.latencySum += m.previous.latencySum
	if m.previous.minLatency > 0 && (combined.minLatency == 0 || m.previous.minLatency < combined.minLatency) {
		combined.minLatency = m.previous.minLatency
	}
	if m.previous.maxLatency > combined.maxLatency {
		combined.maxLatency = m.previous.maxLatency
	}
	return combined
}

// # Health Snapshot

// Snapshot computes the current [Stats]. Counters are lifetime totals;
// latency extremes cover the rolling window only.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollLocked(m.now())

	stats := Stats{
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
		TotalRequests:   m.total,
		TotalErrors:     m.errors,
		AuthFailures:    m.authFailures,
		RateLimitedHits: m.rateLimitedHits,
		CacheHits:       m.cacheHits,
		StatusCounts:    make(map[int]int64, len(m.statusCounts)),
	}
	for status, count := range m.statusCounts {
		stats.StatusCounts[status] = count
	}

	recent := m.recentLocked()
	if m.total > 0 {
		stats.ErrorRate = float64(m.errors) / float64(m.total)
	}
	if recent.total > 0 {
		stats.MinLatencyMS = durationMS(recent.minLatency)
		stats.AvgLatencyMS = durationMS(recent.latencySum / time.Duration(recent.total))
		stats.MaxLatencyMS = durationMS(recent.maxLatency)
	}

	stats.HealthScore = m.scoreLocked(recent)
	switch {
	case stats.HealthScore >= healthyFloor:
		stats.State = StateHealthy
	case stats.HealthScore >= degradedFloor:
		stats.State = StateDegraded
	default:
		stats.State = StateCritical
	}

	if m.exporter != nil {
		m.exporter.SetHealthScore(stats.HealthScore)
	}
	return stats
}

// scoreLocked computes the composite health score over the rolling window.
// Callers hold the mutex.
func (m *Monitor) scoreLocked(recent windowStats) int {
	score := 100

	if recent.total > 0 {
		rate := float64(recent.errors) / float64(recent.total)
		if rate > m.cfg.ErrorRateThreshold {
			score -= deductErrorRate
		}
		avgMS := durationMS(recent.latencySum / time.Duration(recent.total))
		if avgMS > m.cfg.ResponseTimeThreshold {
			score -= deductResponseTime
		}
	}
	if !m.lastCriticalAlert.IsZero() && m.now().Sub(m.lastCriticalAlert) < criticalAlertWindow {
		score -= deductCritical
	}

	if score < 0 {
		score = 0
	}
	return score
}

// # Threshold Evaluation

// evaluateLocked checks every threshold over the rolling window and
// returns tripped alerts. Callers hold the mutex.
func (m *Monitor) evaluateLocked() []Alert {
	var alerts []Alert
	now := m.now()
	recent := m.recentLocked()

	if recent.total >= minWindowSamples {
		errorRate := float64(recent.errors) / float64(recent.total)
		if errorRate > m.cfg.ErrorRateThreshold {
			alerts = append(alerts, Alert{
				Type:      AlertErrorRate,
				Severity:  SeverityCritical,
				Message:   "error rate above threshold",
				Value:     errorRate,
				Threshold: m.cfg.ErrorRateThreshold,
				At:        now,
			})
			m.lastCriticalAlert = now
		}

		avgMS := durationMS(recent.latencySum / time.Duration(recent.total))
		if avgMS > m.cfg.ResponseTimeThreshold {
			alerts = append(alerts, Alert{
				Type:      AlertResponseTime,
				Severity:  SeverityWarning,
				Message:   "average response time above threshold",
				Value:     avgMS,
				Threshold: m.cfg.ResponseTimeThreshold,
				At:        now,
			})
		}
	}

	if m.cfg.AuthFailureThreshold > 0 && recent.authFails >= int64(m.cfg.AuthFailureThreshold) {
		alerts = append(alerts, Alert{
			Type:      AlertAuthFailures,
			Severity:  SeverityCritical,
			Message:   "authentication failures above threshold",
			Value:     float64(recent.authFails),
			Threshold: float64(m.cfg.AuthFailureThreshold),
			At:        now,
		})
		m.lastCriticalAlert = now
	}

	if m.cfg.RateLimitThreshold > 0 && recent.rateLimited >= int64(m.cfg.RateLimitThreshold) {
		alerts = append(alerts, Alert{
			Type:      AlertRateLimited,
			Severity:  SeverityWarning,
			Message:   "rate-limited requests above threshold",
			Value:     float64(recent.rateLimited),
			Threshold: float64(m.cfg.RateLimitThreshold),
			At:        now,
		})
	}

	return alerts
}

// durationMS converts a duration to float milliseconds.
func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
