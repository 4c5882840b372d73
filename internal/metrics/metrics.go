// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exposes Prometheus collectors for ingestion, rollups and
// statistics queries. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "desa"

// Ingestion results.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultNoop  = "noop"
)

// Metrics holds the application collectors.
type Metrics struct {
	// Ingestion
	IngestEvents *prometheus.CounterVec

	// Rollups
	RollupRuns     *prometheus.CounterVec
	RollupDuration prometheus.Histogram

	// Statistics queries
	ReportDuration *prometheus.HistogramVec
	FallbackDays   prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		IngestEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Tracking events received, by event type and result.",
		}, []string{"event", "result"}),

		RollupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollup",
			Name:      "dates_total",
			Help:      "Daily rollups generated, by result.",
		}, []string{"result"}),
		RollupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rollup",
			Name:      "duration_seconds",
			Help:      "Time to compute and store one daily rollup.",
			Buckets:   prometheus.DefBuckets,
		}),

		ReportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "report_duration_seconds",
			Help:      "Time to answer a statistics request, by cache outcome.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"cache"}),
		FallbackDays: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "fallback_days_total",
			Help:      "Days computed from raw rows because their rollup was missing or stale.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "active_sessions",
			Help:      "Open sessions started within the realtime window at the last query.",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// IngestEvent counts one tracking event.
func (m *Metrics) IngestEvent(event, result string) {
	if m == nil {
		return
	}
	m.IngestEvents.WithLabelValues(event, result).Inc()
}

// ObserveRollup records one rollup attempt.
func (m *Metrics) ObserveRollup(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.RollupRuns.WithLabelValues(result).Inc()
	m.RollupDuration.Observe(d.Seconds())
}

// ObserveReport records the latency of one statistics request.
func (m *Metrics) ObserveReport(cached bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "miss"
	if cached {
		label = "hit"
	}
	m.ReportDuration.WithLabelValues(label).Observe(d.Seconds())
}

// AddFallbackDays counts days computed from raw rows.
func (m *Metrics) AddFallbackDays(n int) {
	if m == nil || n == 0 {
		return
	}
	m.FallbackDays.Add(float64(n))
}

// SetActiveSessions updates the realtime gauge.
func (m *Metrics) SetActiveSessions(n int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
