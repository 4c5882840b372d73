// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/olegiv/desa-go/internal/store"
)

// Aggregator computes daily statistics from raw sessions and page views.
// It never writes.
type Aggregator struct {
	queries *store.Queries
	loc     *time.Location
}

// NewAggregator creates an aggregator whose calendar days are days in loc.
func NewAggregator(queries *store.Queries, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{queries: queries, loc: loc}
}

// Location returns the reference timezone.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Today returns midnight of the current day in the reference timezone.
func (a *Aggregator) Today() time.Time {
	return StartOfDay(timeNow().In(a.loc))
}

// ComputeDay aggregates the non-bot traffic of one calendar day. Only the
// date part of day, taken in the reference timezone, is used. The returned
// row has zero CreatedAt and UpdatedAt.
func (a *Aggregator) ComputeDay(ctx context.Context, day time.Time) (store.DailyStat, error) {
	day = day.In(a.loc)
	w := DayWindow(day)
	ds := store.DailyStat{StatDate: FormatDay(day)}

	total, unique, err := a.queries.CountSessions(ctx, w)
	if err != nil {
		return ds, fmt.Errorf("counting sessions: %w", err)
	}
	ds.TotalVisitors = total
	ds.UniqueVisitors = unique

	returning, err := a.queries.CountReturningVisitors(ctx, w)
	if err != nil {
		return ds, fmt.Errorf("counting returning visitors: %w", err)
	}
	ds.ReturningUsers = returning
	ds.NewUsers = unique - returning

	if ds.TotalPageViews, err = a.queries.CountPageViews(ctx, w); err != nil {
		return ds, fmt.Errorf("counting page views: %w", err)
	}

	devices, err := a.queries.Breakdown(ctx, w, store.DimDevice, 0)
	if err != nil {
		return ds, fmt.Errorf("counting devices: %w", err)
	}
	for _, d := range devices {
		switch d.Label {
		case DeviceDesktop:
			ds.DesktopUsers = d.Count
		case DeviceMobile:
			ds.MobileUsers = d.Count
		case DeviceTablet:
			ds.TabletUsers = d.Count
		}
	}

	if total > 0 {
		bounced, err := a.queries.CountBouncedSessions(ctx, w)
		if err != nil {
			return ds, fmt.Errorf("counting bounced sessions: %w", err)
		}
		ds.BounceRate = round2(float64(bounced) / float64(total) * 100)
	}

	avg, err := a.queries.AverageSessionDuration(ctx, w)
	if err != nil {
		return ds, fmt.Errorf("averaging session duration: %w", err)
	}
	if avg.Valid {
		ds.AvgSessionDuration = round2(avg.Float64)
	}

	return ds, nil
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
