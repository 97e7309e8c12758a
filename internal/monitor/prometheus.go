// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes request metrics on a dedicated Prometheus registry.
//
// A dedicated registry (rather than the process default) keeps the
// /metrics surface limited to gateway series plus the standard Go and
// process collectors.
type Exporter struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authFailures    prometheus.Counter
	rateLimited     prometheus.Counter
	cacheHits       prometheus.Counter
	healthScore     prometheus.Gauge
}

// NewExporter constructs and registers the gateway collectors.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	exporter := &Exporter{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relata",
			Name:      "requests_total",
			Help:      "Requests handled, by action and response status.",
		}, []string{"action", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relata",
			Name:      "request_duration_seconds",
			Help:      "Request latency distribution, by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relata",
			Name:      "auth_failures_total",
			Help:      "Requests rejected for missing or invalid credentials.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relata",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relata",
			Name:      "cache_hits_total",
			Help:      "Read responses served from cache.",
		}),
		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relata",
			Name:      "health_score",
			Help:      "Composite health score (0-100).",
		}),
	}

	registry.MustRegister(
		exporter.requestsTotal,
		exporter.requestDuration,
		exporter.authFailures,
		exporter.rateLimited,
		exporter.cacheHits,
		exporter.healthScore,
	)

	return exporter
}

// Observe folds one sample into the collectors.
func (e *Exporter) Observe(sample Sample) {
	action := sample.Action
	if action == "" {
		action = "unknown"
	}

	e.requestsTotal.WithLabelValues(action, strconv.Itoa(sample.Status)).Inc()
	e.requestDuration.WithLabelValues(action).Observe(sample.Latency.Seconds())

	if sample.AuthFailure {
		e.authFailures.Inc()
	}
	if sample.RateLimited {
		e.rateLimited.Inc()
	}
	if sample.CacheHit {
		e.cacheHits.Inc()
	}
}

// SetHealthScore publishes the latest composite score.
func (e *Exporter) SetHealthScore(score int) {
	e.healthScore.Set(float64(score))
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
