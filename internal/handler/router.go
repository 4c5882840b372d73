// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/desa-go/internal/middleware"
)

// RouterConfig holds everything the HTTP router serves.
type RouterConfig struct {
	Logger     *slog.Logger
	Analytics  *AnalyticsHandler
	Statistics *StatisticsHandler
	Logs       *LogsHandler
	Health     *HealthHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler

	AdminTokenHash string
	// TrustedProxies may set the client address through forwarding
	// headers; nil ignores those headers.
	TrustedProxies *middleware.TrustedProxies
	IngestLimiter  *middleware.RateLimiter
	IngestTimeout  time.Duration
	QueryTimeout   time.Duration
	RollupTimeout  time.Duration
}

// NewRouter builds the application router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get(RouteHealth, cfg.Health.Health)
	r.Get(RouteHealthLive, cfg.Health.Liveness)
	r.Get(RouteHealthReady, cfg.Health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, RouteMetrics, cfg.Metrics)
	}

	// Public tracking beacons
	r.Route(RouteAnalytics, func(r chi.Router) {
		if cfg.IngestLimiter != nil {
			r.Use(cfg.IngestLimiter.Middleware())
		}
		r.Use(middleware.Timeout(cfg.IngestTimeout))
		r.Post(RouteSession, cfg.Analytics.StartSession)
		r.Post(RouteSessionEnd, cfg.Analytics.EndSession)
		r.Post(RoutePageView, cfg.Analytics.RecordPageView)
		r.Post(RoutePageExit, cfg.Analytics.RecordPageExit)
	})

	// Admin API
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminTokenHash, cfg.Logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.QueryTimeout))
			r.Get(RouteStatistics, cfg.Statistics.Statistics)
			r.Get(RouteRealtime, cfg.Statistics.Realtime)
			r.Get(RouteLogs, cfg.Logs.Logs)
			r.Get(RouteEvents, cfg.Logs.Events)
		})

		r.With(middleware.Timeout(cfg.RollupTimeout)).Post(RouteRollup, cfg.Statistics.Rollup)
	})

	return r
}
