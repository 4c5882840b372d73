// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"log/slog"
	"time"
)

// Config holds configuration for cache creation.
type Config struct {
	// RedisURL selects the Redis backend when set, e.g. redis://localhost:6379/0
	RedisURL string
	// Prefix is the key prefix for Redis
	Prefix string
	// DefaultTTL is the default TTL for cache entries
	DefaultTTL time.Duration
	// MaxSize is the maximum number of entries for memory cache (0 = unlimited)
	MaxSize int
	// CleanupInterval is the interval for expired entry cleanup
	CleanupInterval time.Duration
}

// New creates the configured cache. If Redis is configured but unreachable
// the memory cache is used instead, so a Redis outage never stops startup.
// The returned string names the backend in use.
func New(cfg Config, logger *slog.Logger) (Cache, string) {
	if cfg.RedisURL != "" {
		opts := DefaultRedisCacheOptions()
		opts.URL = cfg.RedisURL
		if cfg.Prefix != "" {
			opts.Prefix = cfg.Prefix
		}
		if cfg.DefaultTTL > 0 {
			opts.DefaultTTL = cfg.DefaultTTL
		}

		rc, err := NewRedisCache(opts)
		if err == nil {
			return rc, "redis"
		}
		logger.Warn("redis cache unavailable, falling back to memory", "error", err, "category", "cache")
	}

	cleanup := cfg.CleanupInterval
	if cleanup == 0 {
		cleanup = time.Minute
	}
	return NewMemoryCache(MemoryCacheOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cleanup,
	}), "memory"
}
