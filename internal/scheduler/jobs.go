// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/olegiv/desa-go/internal/analytics"
	"github.com/olegiv/desa-go/internal/store"
)

// Job names.
const (
	JobDailyRollup = "daily-rollup"
	JobRecompute   = "recompute"
	JobGeoIPReload = "geoip-reload"
)

// Rollups generates daily statistics.
type Rollups interface {
	GenerateYesterday(ctx context.Context) (store.DailyStat, error)
	GenerateRecent(ctx context.Context, days int) (analytics.RangeResult, error)
}

// Reloader reopens a database file.
type Reloader interface {
	Reload() error
}

// JobConfig holds the schedules of the built-in jobs.
type JobConfig struct {
	RollupSchedule    string
	RecomputeSchedule string
	RecomputeDays     int
	// GeoIPSchedule is ignored when GeoIP is nil.
	GeoIPSchedule string
	Timeout       time.Duration
}

// RegisterJobs adds the rollup, recompute and GeoIP reload jobs.
// A recompute job with RecomputeDays of zero is not registered.
func RegisterJobs(s *Scheduler, rollups Rollups, geo Reloader, cfg JobConfig) error {
	err := s.Add(Job{
		Name:        JobDailyRollup,
		Description: "Generate the daily statistics for yesterday",
		Schedule:    cfg.RollupSchedule,
		Timeout:     cfg.Timeout,
		Run: func(ctx context.Context) error {
			ds, err := rollups.GenerateYesterday(ctx)
			if err != nil {
				return fmt.Errorf("daily rollup: %w", err)
			}
			s.logger.Info("daily rollup complete", "date", ds.StatDate, "visitors", ds.TotalVisitors)
			return nil
		},
	})
	if err != nil {
		return err
	}

	if cfg.RecomputeDays > 0 {
		err = s.Add(Job{
			Name:        JobRecompute,
			Description: fmt.Sprintf("Regenerate the last %d days to absorb late events", cfg.RecomputeDays),
			Schedule:    cfg.RecomputeSchedule,
			Timeout:     cfg.Timeout,
			Run: func(ctx context.Context) error {
				res, err := rollups.GenerateRecent(ctx, cfg.RecomputeDays)
				if err != nil {
					return fmt.Errorf("recompute rollup: %w", err)
				}
				if res.Failed > 0 {
					return fmt.Errorf("recompute rollup: %d of %d dates failed", res.Failed, len(res.Results))
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	if geo != nil && cfg.GeoIPSchedule != "" {
		err = s.Add(Job{
			Name:        JobGeoIPReload,
			Description: "Reopen the GeoIP database after an update",
			Schedule:    cfg.GeoIPSchedule,
			Timeout:     time.Minute,
			Run: func(context.Context) error {
				if err := geo.Reload(); err != nil {
					return fmt.Errorf("geoip reload: %w", err)
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}
