// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/olegiv/desa-go/internal/analytics"
	"github.com/olegiv/desa-go/internal/audit"
	"github.com/olegiv/desa-go/internal/auth"
	"github.com/olegiv/desa-go/internal/cache"
	"github.com/olegiv/desa-go/internal/geoip"
	"github.com/olegiv/desa-go/internal/handler"
	"github.com/olegiv/desa-go/internal/metrics"
	"github.com/olegiv/desa-go/internal/middleware"
	"github.com/olegiv/desa-go/internal/scheduler"
	"github.com/olegiv/desa-go/internal/version"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the rollup scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, logger := a.cfg, a.logger
	logger.Info("starting desa", "version", version.Get().String(), "env", cfg.Env, "timezone", cfg.Timezone)

	// GeoIP
	geo := geoip.NewLookup()
	if cfg.GeoIPEnabled() {
		if err := geo.Init(cfg.GeoIPDBPath); err != nil {
			logger.Warn("geoip database unavailable, countries will be unknown", "error", err, "category", "geoip")
		} else {
			logger.Info("geoip database loaded", "path", cfg.GeoIPDBPath)
		}
	}
	defer func() { _ = geo.Close() }()

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("DESA_TRUSTED_PROXIES: %w", err)
	}
	if trusted.Len() > 0 {
		logger.Info("forwarding headers trusted", "proxies", trusted.Len())
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Report cache
	var reportCache cache.Cache
	cacheBackend := "disabled"
	if cfg.StatsCacheTTL > 0 {
		c, backend := cache.New(cache.Config{
			RedisURL:   cfg.RedisURL,
			Prefix:     cfg.CachePrefix,
			DefaultTTL: cfg.StatsCacheTTL,
			MaxSize:    cfg.CacheMaxSize,
		}, logger)
		reportCache, cacheBackend = c, backend
		defer func() { _ = c.Close() }()
		logger.Info("report cache initialized", "backend", backend, "ttl", cfg.StatsCacheTTL)
	}

	// Services
	loc := cfg.Location()
	auditSvc := audit.NewService(a.queries, logger)
	tracker := analytics.NewTracker(a.queries, geo, m, logger)
	aggregator := analytics.NewAggregator(a.queries, loc)
	queryService := analytics.NewQueryService(a.queries, aggregator, logger, analytics.QueryOptions{
		Cache:          reportCache,
		CacheTTL:       cfg.StatsCacheTTL,
		TopPages:       cfg.TopPagesLimit,
		RealtimeWindow: cfg.RealtimeWindow,
		Metrics:        m,
	})
	rollups := analytics.NewRollupGenerator(a.queries, aggregator, logger, analytics.RollupOptions{
		Auditor:     auditSvc,
		Invalidator: queryService,
		Metrics:     m,
		MaxDays:     cfg.RollupMaxDays,
	})

	// Scheduler
	var reloader scheduler.Reloader
	if cfg.GeoIPEnabled() {
		reloader = geo
	}
	sched := scheduler.New(loc, logger)
	if err := scheduler.RegisterJobs(sched, rollups, reloader, scheduler.JobConfig{
		RollupSchedule:    cfg.RollupSchedule,
		RecomputeSchedule: cfg.RecomputeSchedule,
		RecomputeDays:     cfg.RecomputeDays,
		GeoIPSchedule:     cfg.GeoIPReloadSchedule,
		Timeout:           cfg.RollupTimeout,
	}); err != nil {
		return fmt.Errorf("registering scheduled jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	switch {
	case !cfg.AdminAuthEnabled():
		logger.Warn("admin endpoints are not protected; set DESA_ADMIN_TOKEN_HASH", "category", "security")
	case auth.NeedsRehash(cfg.AdminTokenHash):
		logger.Warn("admin token hash uses outdated parameters; regenerate it with desa hash-token", "category", "security")
	}

	r := handler.NewRouter(handler.RouterConfig{
		Logger:         logger,
		Analytics:      handler.NewAnalyticsHandler(tracker, logger),
		Statistics:     handler.NewStatisticsHandler(queryService, rollups, logger),
		Logs:           handler.NewLogsHandler(auditSvc, a.queries, logger),
		Health:         handler.NewHealthHandler(a.queries, cacheBackend),
		Metrics:        metrics.Handler(reg),
		AdminTokenHash: cfg.AdminTokenHash,
		TrustedProxies: trusted,
		IngestLimiter:  middleware.NewRateLimiter(cfg.IngestRateLimit, cfg.IngestBurst, logger),
		IngestTimeout:  cfg.IngestTimeout,
		QueryTimeout:   cfg.QueryTimeout,
		RollupTimeout:  cfg.RollupTimeout,
	})

	// The write deadline must outlast the slowest route.
	writeTimeout := max(60*time.Second, cfg.QueryTimeout, cfg.RollupTimeout) + 10*time.Second
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
