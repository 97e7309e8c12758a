// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Alert types, one per monitored threshold.
const (
	AlertErrorRate    = "error_rate"
	AlertResponseTime = "response_time"
	AlertAuthFailures = "auth_failures"
	AlertRateLimited  = "rate_limited"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// throttleInterval bounds how often one alert type may dispatch.
const throttleInterval = 5 * time.Minute

// webhookTimeout bounds one webhook delivery attempt.
const webhookTimeout = 5 * time.Second

// Alert is one threshold violation.
type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Handler delivers an alert to one destination.
type Handler interface {
	Name() string
	Handle(ctx context.Context, alert Alert) error
}

// Alerter throttles and dispatches alerts to its handlers in order.
//
// Dispatch is asynchronous: raising an alert never blocks the request
// that tripped the threshold. One failing handler is logged and skipped;
// the remaining handlers still run.
type Alerter struct {
	handlers []Handler
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// wg lets tests wait for in-flight dispatches.
	wg sync.WaitGroup
}

// NewAlerter constructs an [Alerter] over ordered handlers.
func NewAlerter(handlers []Handler, logger *slog.Logger) *Alerter {
	return &Alerter{
		handlers: handlers,
		logger:   logger.With(slog.String("component", "monitor")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Raise dispatches the alert unless its type is inside the throttle
// interval.
func (a *Alerter) Raise(alert Alert) {
	if !a.allow(alert.Type) {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(alert)
	}()
}

// Wait blocks until in-flight dispatches finish. Used in tests and on
// shutdown.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

// allow consults the per-type throttle.
func (a *Alerter) allow(alertType string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	limiter, ok := a.limiters[alertType]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(throttleInterval), 1)
		a.limiters[alertType] = limiter
	}
	return limiter.Allow()
}

// dispatch runs every handler in order.
func (a *Alerter) dispatch(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	for _, handler := range a.handlers {
		if err := handler.Handle(ctx, alert); err != nil {
			a.logger.Error("alert_handler_failed",
				slog.String("handler", handler.Name()),
				slog.String("alert", alert.Type),
				slog.String("error", err.Error()))
		}
	}
}

// # Handlers

// LogHandler writes alerts to the process log.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler constructs a [LogHandler].
func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Name implements [Handler].
func (h *LogHandler) Name() string { return "log" }

// Handle implements [Handler].
func (h *LogHandler) Handle(_ context.Context, alert Alert) error {
	h.logger.Warn("alert",
		slog.String("type", alert.Type),
		slog.String("severity", alert.Severity),
		slog.String("message", alert.Message),
		slog.Float64("value", alert.Value),
		slog.Float64("threshold", alert.Threshold),
	)
	return nil
}

// WebhookHandler POSTs alerts as JSON to a configured URL.
type WebhookHandler struct {
	url    string
	client *http.Client
}

// NewWebhookHandler constructs a [WebhookHandler].
func NewWebhookHandler(url string) *WebhookHandler {
	return &WebhookHandler{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Name implements [Handler].
func (h *WebhookHandler) Name() string { return "webhook" }

// Handle implements [Handler].
func (h *WebhookHandler) Handle(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("monitor: encode alert: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("monitor: build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := h.client.Do(request)
	if err != nil {
		return fmt.Errorf("monitor: webhook delivery: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return fmt.Errorf("monitor: webhook returned status %d", response.StatusCode)
	}
	return nil
}
