// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/desa-go/internal/auth"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite" // modernc.org/sqlite (pure Go)
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	Env        string `env:"DESA_ENV" envDefault:"development"`
	ServerHost string `env:"DESA_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"DESA_SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"DESA_LOG_LEVEL" envDefault:"info"`

	DBDriver string `env:"DESA_DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DESA_DB_DSN" envDefault:"./data/desa.db"`

	// Reference timezone for calendar-day windows. Timestamps are stored in UTC.
	Timezone string `env:"DESA_TIMEZONE" envDefault:"Asia/Jakarta"`

	// argon2id (or bcrypt) hash of the bearer token guarding statistics and rollup endpoints.
	// Generate with: desa hash-token <token>
	AdminTokenHash string `env:"DESA_ADMIN_TOKEN_HASH"`

	GeoIPDBPath         string `env:"DESA_GEOIP_DB_PATH"` // Path to GeoLite2-City.mmdb or GeoLite2-Country.mmdb
	GeoIPReloadSchedule string `env:"DESA_GEOIP_RELOAD_SCHEDULE" envDefault:"30 3 * * 3"`

	RedisURL      string        `env:"DESA_REDIS_URL"`                        // Optional Redis URL for shared report caching
	CachePrefix   string        `env:"DESA_CACHE_PREFIX" envDefault:"desa:"`  // Redis key prefix
	CacheMaxSize  int           `env:"DESA_CACHE_MAX_SIZE" envDefault:"1000"` // Max memory cache entries
	StatsCacheTTL time.Duration `env:"DESA_STATS_CACHE_TTL" envDefault:"60s"` // Report cache lifetime, 0 disables

	RollupSchedule    string        `env:"DESA_ROLLUP_SCHEDULE" envDefault:"10 0 * * *"`
	RecomputeSchedule string        `env:"DESA_RECOMPUTE_SCHEDULE" envDefault:"0 * * * *"`
	RecomputeDays     int           `env:"DESA_RECOMPUTE_DAYS" envDefault:"2"`
	RollupTimeout     time.Duration `env:"DESA_ROLLUP_TIMEOUT" envDefault:"5m"`
	RollupMaxDays     int           `env:"DESA_ROLLUP_MAX_DAYS" envDefault:"366"` // Longest range one rollup request may cover

	IngestRateLimit float64       `env:"DESA_INGEST_RATE_LIMIT" envDefault:"10"` // Requests per second per IP
	IngestBurst     int           `env:"DESA_INGEST_BURST" envDefault:"30"`
	IngestTimeout   time.Duration `env:"DESA_INGEST_TIMEOUT" envDefault:"2s"`

	// Reverse proxies (IPs or CIDRs) allowed to set X-Forwarded-For/X-Real-IP.
	// Empty means forwarding headers are ignored.
	TrustedProxies []string      `env:"DESA_TRUSTED_PROXIES" envSeparator:","`
	QueryTimeout   time.Duration `env:"DESA_QUERY_TIMEOUT" envDefault:"30s"`

	TopPagesLimit  int           `env:"DESA_TOP_PAGES_LIMIT" envDefault:"10"`
	RealtimeWindow time.Duration `env:"DESA_REALTIME_WINDOW" envDefault:"5m"`
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if a GeoIP database path is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// AdminAuthEnabled returns true if the admin endpoints require a bearer token.
func (c Config) AdminAuthEnabled() bool {
	return c.AdminTokenHash != ""
}

// Location returns the reference timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load parses environment variables into a Config struct and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("DESA_DB_DRIVER %q is not supported; use one of sqlite, mysql, postgres", cfg.DBDriver)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DESA_DB_DSN must not be empty")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("DESA_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if !cfg.IsDevelopment() && cfg.AdminTokenHash == "" {
		return nil, fmt.Errorf("DESA_ADMIN_TOKEN_HASH is required outside development; " +
			"generate one with: desa hash-token <token>")
	}

	if cfg.AdminTokenHash != "" {
		if err := auth.ValidateHash(cfg.AdminTokenHash); err != nil {
			return nil, fmt.Errorf("DESA_ADMIN_TOKEN_HASH: %w", err)
		}
	}

	if cfg.RecomputeDays < 0 {
		return nil, fmt.Errorf("DESA_RECOMPUTE_DAYS must not be negative, got %d", cfg.RecomputeDays)
	}

	if cfg.RollupMaxDays <= 0 {
		return nil, fmt.Errorf("DESA_ROLLUP_MAX_DAYS must be positive, got %d", cfg.RollupMaxDays)
	}
	if cfg.RecomputeDays > cfg.RollupMaxDays {
		return nil, fmt.Errorf("DESA_RECOMPUTE_DAYS (%d) exceeds DESA_ROLLUP_MAX_DAYS (%d)", cfg.RecomputeDays, cfg.RollupMaxDays)
	}

	if cfg.TopPagesLimit <= 0 {
		return nil, fmt.Errorf("DESA_TOP_PAGES_LIMIT must be positive, got %d", cfg.TopPagesLimit)
	}

	if cfg.IngestRateLimit <= 0 || cfg.IngestBurst <= 0 {
		return nil, fmt.Errorf("DESA_INGEST_RATE_LIMIT and DESA_INGEST_BURST must be positive")
	}

	return cfg, nil
}
