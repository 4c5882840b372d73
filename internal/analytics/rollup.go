// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olegiv/desa-go/internal/audit"
	"github.com/olegiv/desa-go/internal/metrics"
	"github.com/olegiv/desa-go/internal/store"
)

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Invalidator drops cached reports after rollups change.
type Invalidator interface {
	InvalidateReports(ctx context.Context) error
}

// DefaultRollupMaxDays bounds GenerateStatsForRange when RollupOptions.MaxDays is zero.
const DefaultRollupMaxDays = 366

// RollupOptions holds the optional collaborators of a RollupGenerator.
type RollupOptions struct {
	Auditor     Auditor
	Invalidator Invalidator
	Metrics     *metrics.Metrics
	// MaxDays is the longest range GenerateStatsForRange accepts.
	MaxDays int
}

// RollupGenerator writes daily rollups.
type RollupGenerator struct {
	queries    *store.Queries
	aggregator *Aggregator
	logger     *slog.Logger
	opts       RollupOptions

	// dateLocks serialises generation of the same date within the process.
	dateLocks sync.Map
}

// NewRollupGenerator creates a rollup generator.
func NewRollupGenerator(queries *store.Queries, aggregator *Aggregator, logger *slog.Logger, opts RollupOptions) *RollupGenerator {
	g := &RollupGenerator{
		queries:    queries,
		aggregator: aggregator,
		logger:     logger,
		opts:       opts,
	}
	if g.opts.MaxDays <= 0 {
		g.opts.MaxDays = DefaultRollupMaxDays
	}
	return g
}

// DateResult is the outcome of generating one date.
type DateResult struct {
	Date    string           `json:"date"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Stat    *store.DailyStat `json:"stat,omitempty"`
}

// RangeResult is the outcome of generating a range of dates.
type RangeResult struct {
	Results   []DateResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// GenerateStatsForDate computes the rollup of one calendar day and stores
// it, replacing any previous row for the date. Running it again over
// unchanged raw data after the day has ended leaves the row untouched.
func (g *RollupGenerator) GenerateStatsForDate(ctx context.Context, day time.Time) (store.DailyStat, error) {
	start := time.Now()
	ds, err := g.generate(ctx, day)
	g.opts.Metrics.ObserveRollup(err, time.Since(start))
	return ds, err
}

func (g *RollupGenerator) generate(ctx context.Context, day time.Time) (store.DailyStat, error) {
	day = day.In(g.aggregator.Location())
	date := FormatDay(day)

	mu := g.lockFor(date)
	mu.Lock()
	defer mu.Unlock()

	ds, err := g.aggregator.ComputeDay(ctx, day)
	if err != nil {
		return store.DailyStat{}, fmt.Errorf("computing %s: %w", date, err)
	}

	previous, err := g.queries.GetDailyStat(ctx, date)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return store.DailyStat{}, fmt.Errorf("loading previous rollup for %s: %w", date, err)
	}

	// A settled row with the same counters is kept as is, so regenerating
	// unchanged data leaves the stored row untouched.
	if exists && sameCounters(previous, ds) && !previous.UpdatedAt.Before(DayWindow(day).End) {
		return previous, nil
	}

	now := timeNow().UTC()
	ds.CreatedAt = now
	if exists {
		ds.CreatedAt = previous.CreatedAt
	}
	ds.UpdatedAt = now

	if err := g.queries.UpsertDailyStat(ctx, ds); err != nil {
		return store.DailyStat{}, fmt.Errorf("storing rollup for %s: %w", date, err)
	}

	g.logger.Info("daily rollup generated", "date", date,
		"visitors", ds.TotalVisitors, "page_views", ds.TotalPageViews, "category", "rollup")

	if g.opts.Invalidator != nil {
		if err := g.opts.Invalidator.InvalidateReports(ctx); err != nil {
			g.logger.Warn("failed to invalidate cached reports", "error", err, "category", "cache")
		}
	}

	if g.opts.Auditor != nil {
		entry := audit.Entry{Action: audit.ActionCreate, EntityType: "daily_stats", EntityID: date, After: ds}
		if exists {
			entry.Action = audit.ActionUpdate
			entry.Before = previous
		}
		if err := g.opts.Auditor.Record(ctx, entry); err != nil {
			g.logger.Warn("failed to audit rollup", "error", err, "date", date)
		}
	}

	return ds, nil
}

// GenerateStatsForRange generates every date from start to end inclusive,
// one after another. A failing date is reported in the result and does not
// stop the others. The error is non-nil only for an invalid range (including
// one longer than the configured maximum) or a cancelled context; dates not
// reached are reported as failed.
func (g *RollupGenerator) GenerateStatsForRange(ctx context.Context, start, end time.Time) (RangeResult, error) {
	loc := g.aggregator.Location()
	rng, err := NewDateRange(start.In(loc), end.In(loc))
	if err != nil {
		return RangeResult{}, err
	}
	if err := rng.CheckMaxDays(g.opts.MaxDays); err != nil {
		return RangeResult{}, err
	}

	days := rng.Days()
	res := RangeResult{Results: make([]DateResult, 0, len(days))}

	for _, day := range days {
		r := DateResult{Date: FormatDay(day)}
		if err := ctx.Err(); err != nil {
			r.Error = err.Error()
			res.Results = append(res.Results, r)
			res.Failed++
			continue
		}

		ds, err := g.GenerateStatsForDate(ctx, day)
		if err != nil {
			g.logger.Error("daily rollup failed", "date", r.Date, "error", err, "category", "rollup")
			r.Error = err.Error()
			res.Failed++
		} else {
			r.Success = true
			r.Stat = &ds
			res.Succeeded++
		}
		res.Results = append(res.Results, r)
	}

	return res, ctx.Err()
}

// GenerateRecent regenerates the given number of days before today.
// days <= 0 does nothing.
func (g *RollupGenerator) GenerateRecent(ctx context.Context, days int) (RangeResult, error) {
	if days <= 0 {
		return RangeResult{Results: []DateResult{}}, nil
	}
	today := g.aggregator.Today()
	return g.GenerateStatsForRange(ctx, today.AddDate(0, 0, -days), today.AddDate(0, 0, -1))
}

// GenerateYesterday generates the day before today.
func (g *RollupGenerator) GenerateYesterday(ctx context.Context) (store.DailyStat, error) {
	return g.GenerateStatsForDate(ctx, g.aggregator.Today().AddDate(0, 0, -1))
}

func sameCounters(a, b store.DailyStat) bool {
	a.CreatedAt, a.UpdatedAt = time.Time{}, time.Time{}
	b.CreatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

func (g *RollupGenerator) lockFor(date string) *sync.Mutex {
	mu, _ := g.dateLocks.LoadOrStore(date, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
