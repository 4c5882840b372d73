// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/desa-go/internal/cache"
	"github.com/olegiv/desa-go/internal/metrics"
	"github.com/olegiv/desa-go/internal/store"
)

// Query defaults.
const (
	DefaultTopPages       = 10
	DefaultRealtimeWindow = 5 * time.Minute
	DefaultReportCacheTTL = time.Minute

	maxBreakdownRows = 20
	maxTopPages      = 100
	directReferrer   = "(direct)"
)

// QueryOptions configures a QueryService. Zero values select defaults.
type QueryOptions struct {
	// Cache stores reports; nil disables caching.
	Cache          cache.Cache
	CacheTTL       time.Duration
	TopPages       int
	RealtimeWindow time.Duration
	Metrics        *metrics.Metrics
}

// QueryService composes statistics reports.
type QueryService struct {
	queries    *store.Queries
	aggregator *Aggregator
	logger     *slog.Logger
	reports    *cache.TypedCache[Report]
	topPages   int
	realtime   time.Duration
	metrics    *metrics.Metrics
}

// NewQueryService creates a query service.
func NewQueryService(queries *store.Queries, aggregator *Aggregator, logger *slog.Logger, opts QueryOptions) *QueryService {
	s := &QueryService{
		queries:    queries,
		aggregator: aggregator,
		logger:     logger,
		topPages:   opts.TopPages,
		realtime:   opts.RealtimeWindow,
		metrics:    opts.Metrics,
	}
	if s.topPages <= 0 {
		s.topPages = DefaultTopPages
	}
	if s.realtime <= 0 {
		s.realtime = DefaultRealtimeWindow
	}
	if opts.Cache != nil {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = DefaultReportCacheTTL
		}
		s.reports = cache.NewTypedCache[Report](opts.Cache, "report:", ttl)
	}
	return s
}

// Location returns the reference timezone.
func (s *QueryService) Location() *time.Location {
	return s.aggregator.Location()
}

// GetStatistics returns the report for dateFrom..dateTo inclusive
// (YYYY-MM-DD). limit caps the top pages list; 0 selects the default.
// ErrInvalidRange is returned before the datastore is touched.
func (s *QueryService) GetStatistics(ctx context.Context, dateFrom, dateTo string, limit int) (*Report, error) {
	rng, err := ParseDateRange(dateFrom, dateTo, s.Location())
	if err != nil {
		return nil, err
	}
	return s.GetStatisticsForRange(ctx, rng, limit)
}

// GetStatisticsForRange is GetStatistics for an already parsed range.
// Ranges longer than MaxQueryDays are rejected with ErrInvalidRange.
func (s *QueryService) GetStatisticsForRange(ctx context.Context, rng DateRange, limit int) (*Report, error) {
	if err := rng.CheckMaxDays(MaxQueryDays); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.topPages
	}
	if limit > maxTopPages {
		limit = maxTopPages
	}

	start := time.Now()
	var (
		report *Report
		cached bool
		err    error
	)
	if s.reports != nil {
		key := fmt.Sprintf("%s:%d", rng, limit)
		report, cached, err = s.reports.GetOrSet(ctx, key, func() (*Report, error) {
			return s.buildReport(ctx, rng, limit)
		})
	} else {
		report, err = s.buildReport(ctx, rng, limit)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveReport(cached, time.Since(start))

	rt, err := s.GetRealtime(ctx)
	if err != nil {
		return nil, err
	}
	report.Realtime = rt
	return report, nil
}

// InvalidateReports drops every cached report.
func (s *QueryService) InvalidateReports(ctx context.Context) error {
	if s.reports == nil {
		return nil
	}
	return s.reports.Invalidate(ctx)
}

// GetRealtime returns the sessions started within the realtime window
// that have not ended, and the pages viewed in that window.
func (s *QueryService) GetRealtime(ctx context.Context) (RealtimeBlock, error) {
	now := timeNow().UTC()
	since := now.Add(-s.realtime)

	active, err := s.queries.CountActiveSessions(ctx, since)
	if err != nil {
		return RealtimeBlock{}, fmt.Errorf("counting active sessions: %w", err)
	}
	rows, err := s.queries.ActivePages(ctx, since, s.topPages)
	if err != nil {
		return RealtimeBlock{}, fmt.Errorf("listing active pages: %w", err)
	}

	pages := make([]ActivePage, 0, len(rows))
	for _, r := range rows {
		pages = append(pages, ActivePage{Page: r.Label, Views: r.Count})
	}

	s.metrics.SetActiveSessions(active)
	return RealtimeBlock{
		ActiveSessions: active,
		WindowSeconds:  int64(s.realtime / time.Second),
		ActivePages:    pages,
		AsOf:           now,
	}, nil
}

func (s *QueryService) buildReport(ctx context.Context, rng DateRange, limit int) (*Report, error) {
	report := emptyReport(rng)
	report.GeneratedAt = timeNow().UTC()

	// Nothing can have happened in a range that starts in the future.
	if !rng.From.Before(timeNow()) {
		report.Overview.Days = len(rng.Days())
		return report, nil
	}

	var err error
	if report.Overview, err = s.overview(ctx, rng); err != nil {
		return nil, err
	}

	w := rng.Window()
	if report.Device, err = s.device(ctx, w); err != nil {
		return nil, err
	}
	if report.Geography, err = s.geography(ctx, w); err != nil {
		return nil, err
	}
	if report.Content, err = s.content(ctx, w, limit); err != nil {
		return nil, err
	}
	if report.Temporal, err = s.temporal(ctx, w); err != nil {
		return nil, err
	}
	return report, nil
}

// overview sums the rollups of the range. Days without a settled rollup,
// including today, are computed from the raw tables instead.
func (s *QueryService) overview(ctx context.Context, rng DateRange) (OverviewBlock, error) {
	rows, err := s.queries.ListDailyStats(ctx, FormatDay(rng.From), FormatDay(rng.To))
	if err != nil {
		return OverviewBlock{}, fmt.Errorf("loading daily stats: %w", err)
	}
	rollups := make(map[string]store.DailyStat, len(rows))
	for _, r := range rows {
		rollups[r.StatDate] = r
	}

	days := rng.Days()
	ob := OverviewBlock{
		Days:         len(days),
		ComputedDays: []string{},
		Trend:        make([]TrendPoint, 0, len(days)),
	}
	now := timeNow()
	var bounceSum, durationSum float64

	for _, day := range days {
		date := FormatDay(day)
		w := DayWindow(day)

		ds, ok := rollups[date]
		switch {
		case !w.Start.Before(now):
			ds = store.DailyStat{StatDate: date}
		case !ok || ds.UpdatedAt.Before(w.End):
			if ds, err = s.aggregator.ComputeDay(ctx, day); err != nil {
				return OverviewBlock{}, fmt.Errorf("computing %s: %w", date, err)
			}
			ob.ComputedDays = append(ob.ComputedDays, date)
		default:
			ob.RolledUpDays++
		}

		ob.TotalVisitors += ds.TotalVisitors
		ob.UniqueVisitors += ds.UniqueVisitors
		ob.TotalPageViews += ds.TotalPageViews
		ob.NewUsers += ds.NewUsers
		ob.ReturningUsers += ds.ReturningUsers
		ob.DesktopUsers += ds.DesktopUsers
		ob.MobileUsers += ds.MobileUsers
		ob.TabletUsers += ds.TabletUsers
		bounceSum += ds.BounceRate * float64(ds.TotalVisitors)
		durationSum += ds.AvgSessionDuration * float64(ds.TotalVisitors)

		ob.Trend = append(ob.Trend, TrendPoint{
			Date:           date,
			Visitors:       ds.TotalVisitors,
			UniqueVisitors: ds.UniqueVisitors,
			PageViews:      ds.TotalPageViews,
		})
	}

	if ob.TotalVisitors > 0 {
		visitors := float64(ob.TotalVisitors)
		ob.BounceRate = round2(bounceSum / visitors)
		ob.AvgSessionDuration = round2(durationSum / visitors)
		ob.PagesPerVisit = round2(float64(ob.TotalPageViews) / visitors)
	}
	if n := len(ob.ComputedDays); n > 0 {
		s.metrics.AddFallbackDays(n)
		s.logger.Debug("overview computed from raw data", "days", ob.ComputedDays, "category", "query")
	}
	return ob, nil
}

func (s *QueryService) device(ctx context.Context, w store.Window) (DeviceBlock, error) {
	devices, err := s.queries.Breakdown(ctx, w, store.DimDevice, 0)
	if err != nil {
		return DeviceBlock{}, fmt.Errorf("device breakdown: %w", err)
	}
	browsers, err := s.queries.Breakdown(ctx, w, store.DimBrowser, maxBreakdownRows)
	if err != nil {
		return DeviceBlock{}, fmt.Errorf("browser breakdown: %w", err)
	}
	systems, err := s.queries.Breakdown(ctx, w, store.DimOS, maxBreakdownRows)
	if err != nil {
		return DeviceBlock{}, fmt.Errorf("os breakdown: %w", err)
	}
	return DeviceBlock{
		Devices:          shares(devices, DeviceUnknown),
		Browsers:         shares(browsers, Unknown),
		OperatingSystems: shares(systems, Unknown),
	}, nil
}

func (s *QueryService) geography(ctx context.Context, w store.Window) (GeographyBlock, error) {
	countries, err := s.queries.Breakdown(ctx, w, store.DimCountry, maxBreakdownRows)
	if err != nil {
		return GeographyBlock{}, fmt.Errorf("country breakdown: %w", err)
	}
	cities, err := s.queries.CityBreakdown(ctx, w, maxBreakdownRows)
	if err != nil {
		return GeographyBlock{}, fmt.Errorf("city breakdown: %w", err)
	}
	languages, err := s.queries.Breakdown(ctx, w, store.DimLanguage, maxBreakdownRows)
	if err != nil {
		return GeographyBlock{}, fmt.Errorf("language breakdown: %w", err)
	}

	cityRows := make([]CityShare, 0, len(cities))
	for _, c := range cities {
		cityRows = append(cityRows, CityShare{Country: c.Country, City: c.City, Count: c.Count})
	}
	return GeographyBlock{
		Countries: countryShares(countries),
		Cities:    cityRows,
		Languages: shares(languages, Unknown),
	}, nil
}

func (s *QueryService) content(ctx context.Context, w store.Window, limit int) (ContentBlock, error) {
	pages, err := s.queries.TopPages(ctx, w, limit)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("top pages: %w", err)
	}
	referrers, err := s.queries.Breakdown(ctx, w, store.DimReferrer, maxBreakdownRows)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("referrer breakdown: %w", err)
	}
	return ContentBlock{
		TopPages:  pageRows(pages),
		Referrers: shares(referrers, directReferrer),
	}, nil
}

func (s *QueryService) temporal(ctx context.Context, w store.Window) (TemporalBlock, error) {
	var tb TemporalBlock
	loc := s.Location()
	err := s.queries.EachSessionStart(ctx, w, func(t time.Time) error {
		local := t.In(loc)
		h, d := local.Hour(), int(local.Weekday())
		tb.ByHour[h]++
		tb.ByWeekday[d]++
		tb.Heatmap[d][h]++
		return nil
	})
	if err != nil {
		return TemporalBlock{}, fmt.Errorf("session start times: %w", err)
	}
	return tb, nil
}
