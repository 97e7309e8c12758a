// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatadb/relata/internal/platform/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Enabled:               true,
		WindowSeconds:         60,
		ErrorRateThreshold:    0.1,
		ResponseTimeThreshold: 1000,
		AuthFailureThreshold:  10,
		RateLimitThreshold:    50,
	}
}

/*
TestSnapshotAggregates verifies counters, error rate, and latency
extremes after a mixed sample stream.
*/
func TestSnapshotAggregates(t *testing.T) {
	m := New(testConfig(), nil, nil)

	m.Record(Sample{Action: "list", Status: 200, Latency: 10 * time.Millisecond, CacheHit: true})
	m.Record(Sample{Action: "read", Status: 200, Latency: 30 * time.Millisecond})
	m.Record(Sample{Action: "create", Status: 409, Latency: 20 * time.Millisecond})
	m.Record(Sample{Action: "list", Status: 500, Latency: 40 * time.Millisecond})

	stats := m.Snapshot()
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.InDelta(t, 0.5, stats.ErrorRate, 0.001)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.StatusCounts[200])
	assert.Equal(t, int64(1), stats.StatusCounts[500])
	assert.InDelta(t, 10, stats.MinLatencyMS, 0.001)
	assert.InDelta(t, 25, stats.AvgLatencyMS, 0.001)
	assert.InDelta(t, 40, stats.MaxLatencyMS, 0.001)
}

/*
TestHealthScore drives the score through its deduction tiers.
*/
func TestHealthScore(t *testing.T) {
	t.Run("clean traffic is healthy", func(t *testing.T) {
		m := New(testConfig(), nil, nil)
		for i := 0; i < 20; i++ {
			m.Record(Sample{Action: "list", Status: 200, Latency: 5 * time.Millisecond})
		}

		stats := m.Snapshot()
		assert.Equal(t, 100, stats.HealthScore)
		assert.Equal(t, StateHealthy, stats.State)
	})

	t.Run("error rate deducts and critical alert compounds", func(t *testing.T) {
		m := New(testConfig(), nil, nil)
		for i := 0; i < 10; i++ {
			m.Record(Sample{Action: "list", Status: 500, Latency: 5 * time.Millisecond})
		}

		// 100 - 30 (error rate) - 25 (recent critical alert) = 45.
		stats := m.Snapshot()
		assert.Equal(t, 45, stats.HealthScore)
		assert.Equal(t, StateCritical, stats.State)
	})

	t.Run("slow responses degrade", func(t *testing.T) {
		m := New(testConfig(), nil, nil)
		for i := 0; i < 10; i++ {
			m.Record(Sample{Action: "list", Status: 200, Latency: 2 * time.Second})
		}

		stats := m.Snapshot()
		assert.Equal(t, 80, stats.HealthScore)
		assert.Equal(t, StateHealthy, stats.State)
	})
}

/*
TestHealthScoreRecoversAfterWindow verifies an error burst ages out of the
rolling window instead of depressing the score and latency stats for the
rest of the process lifetime.
*/
func TestHealthScoreRecoversAfterWindow(t *testing.T) {
	m := New(testConfig(), nil, nil)

	base := time.Now()
	m.now = func() time.Time { return base }
	for i := 0; i < 10; i++ {
		m.Record(Sample{Action: "list", Status: 500, Latency: 2 * time.Second})
	}
	assert.Equal(t, StateCritical, m.Snapshot().State)

	// Well past the window (and the critical-alert cooldown), clean
	// traffic restores a clean slate.
	m.now = func() time.Time { return base.Add(10 * time.Minute) }
	for i := 0; i < 10; i++ {
		m.Record(Sample{Action: "list", Status: 200, Latency: 5 * time.Millisecond})
	}

	stats := m.Snapshot()
	assert.Equal(t, 100, stats.HealthScore)
	assert.Equal(t, StateHealthy, stats.State)
	assert.InDelta(t, 5, stats.AvgLatencyMS, 0.001)
	assert.InDelta(t, 5, stats.MaxLatencyMS, 0.001)

	// Lifetime counters keep the full history.
	assert.Equal(t, int64(20), stats.TotalRequests)
	assert.Equal(t, int64(10), stats.TotalErrors)
}

/*
TestDisabledMonitorRecordsNothing verifies the global switch.
*/
func TestDisabledMonitorRecordsNothing(t *testing.T) {
	m := New(config.MonitorConfig{Enabled: false}, nil, nil)
	m.Record(Sample{Action: "list", Status: 500, Latency: time.Second})

	assert.Equal(t, int64(0), m.Snapshot().TotalRequests)
}

// captureHandler records alerts it receives; fail makes it error.
type captureHandler struct {
	mu     sync.Mutex
	name   string
	fail   bool
	alerts []Alert
}

func (h *captureHandler) Name() string { return h.name }

func (h *captureHandler) Handle(_ context.Context, alert Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
	if h.fail {
		return assert.AnError
	}
	return nil
}

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.alerts)
}

/*
TestAlerterDispatchOrderAndIsolation verifies a failing handler does not
stop later handlers, and that throttling suppresses repeats.
*/
func TestAlerterDispatchOrderAndIsolation(t *testing.T) {
	failing := &captureHandler{name: "log", fail: true}
	healthy := &captureHandler{name: "webhook"}
	alerter := NewAlerter([]Handler{failing, healthy}, discardLogger())

	alerter.Raise(Alert{Type: AlertErrorRate, Severity: SeverityCritical, At: time.Now()})
	alerter.Wait()

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, healthy.count())

	// Same type inside the throttle interval: suppressed.
	alerter.Raise(Alert{Type: AlertErrorRate, Severity: SeverityCritical, At: time.Now()})
	alerter.Wait()
	assert.Equal(t, 1, healthy.count())

	// A different type dispatches immediately.
	alerter.Raise(Alert{Type: AlertAuthFailures, Severity: SeverityCritical, At: time.Now()})
	alerter.Wait()
	assert.Equal(t, 2, healthy.count())
}

/*
TestMonitorRaisesErrorRateAlert verifies threshold evaluation feeds the
alerter once enough samples exist.
*/
func TestMonitorRaisesErrorRateAlert(t *testing.T) {
	capture := &captureHandler{name: "capture"}
	alerter := NewAlerter([]Handler{capture}, discardLogger())
	m := New(testConfig(), alerter, nil)

	for i := 0; i < 10; i++ {
		m.Record(Sample{Action: "list", Status: 500, Latency: time.Millisecond})
	}
	alerter.Wait()

	require.GreaterOrEqual(t, capture.count(), 1)
	capture.mu.Lock()
	defer capture.mu.Unlock()
	assert.Equal(t, AlertErrorRate, capture.alerts[0].Type)
	assert.Equal(t, SeverityCritical, capture.alerts[0].Severity)
}

/*
TestWebhookHandler posts an alert to a test server and checks error
propagation for non-2xx responses.
*/
func TestWebhookHandler(t *testing.T) {
	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, jsonDecode(r, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	handler := NewWebhookHandler(server.URL)
	alert := Alert{Type: AlertAuthFailures, Severity: SeverityCritical, Value: 12, Threshold: 10, At: time.Now()}
	require.NoError(t, handler.Handle(context.Background(), alert))
	assert.Equal(t, AlertAuthFailures, received.Type)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	assert.Error(t, NewWebhookHandler(failing.URL).Handle(context.Background(), alert))
}

/*
TestExporterServesMetrics smoke-tests the Prometheus exposition output.
*/
func TestExporterServesMetrics(t *testing.T) {
	exporter := NewExporter()
	exporter.Observe(Sample{Action: "list", Status: 200, Latency: 5 * time.Millisecond, CacheHit: true})
	exporter.Observe(Sample{Action: "create", Status: 429, Latency: time.Millisecond, RateLimited: true})
	exporter.SetHealthScore(75)

	recorder := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	assert.Contains(t, body, "relata_requests_total")
	assert.Contains(t, body, "relata_request_duration_seconds")
	assert.Contains(t, body, "relata_rate_limited_total")
	assert.Contains(t, body, "relata_cache_hits_total")
	assert.Contains(t, body, "relata_health_score 75")
}

// jsonDecode decodes a request body into v.
func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
