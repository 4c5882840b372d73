// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/desa-go/internal/audit"
	"github.com/olegiv/desa-go/internal/store"
	dbtest "github.com/olegiv/desa-go/internal/testutil"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateReports(context.Context) error {
	c.calls++
	return nil
}

func newTestGenerator(q *store.Queries, opts RollupOptions) *RollupGenerator {
	return NewRollupGenerator(q, NewAggregator(q, time.UTC), dbtest.TestLoggerSilent(), opts)
}

// seedMobileVisit stores one mobile session on 2025-01-01 from 10:00Z to
// 10:05Z with a single page view whose exit reported 120 seconds on page.
func seedMobileVisit(t *testing.T, q *store.Queries) {
	t.Helper()
	dbtest.SeedSession(t, q, dbtest.SessionFixture{
		ID:         "visit-1",
		DeviceType: DeviceMobile,
		Start:      utc(2025, 1, 1, 10, 0),
		End:        utc(2025, 1, 1, 10, 5),
	})
	id := dbtest.SeedPageView(t, q, "visit-1", "/", utc(2025, 1, 1, 10, 0))
	require.NoError(t, q.MarkPageExit(context.Background(), id, 120))
}

func TestGenerateStatsForDate_SingleMobileVisit(t *testing.T) {
	q := newTestQueries(t)
	seedMobileVisit(t, q)
	setFakeNow(t, utc(2025, 1, 2, 1, 0))

	ds, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForDate(context.Background(), day(2025, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, "2025-01-01", ds.StatDate)
	assert.Equal(t, int64(1), ds.TotalVisitors)
	assert.Equal(t, int64(1), ds.UniqueVisitors)
	assert.Equal(t, int64(1), ds.TotalPageViews)
	assert.Equal(t, int64(1), ds.NewUsers)
	assert.Equal(t, int64(0), ds.ReturningUsers)
	assert.Equal(t, int64(1), ds.MobileUsers)
	assert.Equal(t, int64(0), ds.DesktopUsers)
	assert.Equal(t, int64(0), ds.TabletUsers)
	assert.Equal(t, 100.0, ds.BounceRate)
	assert.Equal(t, 300.0, ds.AvgSessionDuration)

	stored, err := q.GetDailyStat(context.Background(), "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, ds.TotalVisitors, stored.TotalVisitors)
	assert.Equal(t, ds.BounceRate, stored.BounceRate)
}

func TestGenerateStatsForDate_Idempotent(t *testing.T) {
	q := newTestQueries(t)
	seedMobileVisit(t, q)
	g := newTestGenerator(q, RollupOptions{})
	ctx := context.Background()

	setFakeNow(t, utc(2025, 1, 2, 1, 0))
	_, err := g.GenerateStatsForDate(ctx, day(2025, 1, 1))
	require.NoError(t, err)
	first, err := q.GetDailyStat(ctx, "2025-01-01")
	require.NoError(t, err)

	// Later run over unchanged data.
	setFakeNow(t, utc(2025, 1, 3, 1, 0))
	_, err = g.GenerateStatsForDate(ctx, day(2025, 1, 1))
	require.NoError(t, err)
	second, err := q.GetDailyStat(ctx, "2025-01-01")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	rows, err := q.ListDailyStats(ctx, "2025-01-01", "2025-01-01")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGenerateStatsForDate_RefreshesIntradayRollup(t *testing.T) {
	q := newTestQueries(t)
	seedMobileVisit(t, q)
	inv := &countingInvalidator{}
	g := newTestGenerator(q, RollupOptions{Invalidator: inv, Auditor: audit.NewService(q, dbtest.TestLoggerSilent())})
	ctx := context.Background()

	// Generated before the day ended: the row is stale.
	setFakeNow(t, utc(2025, 1, 1, 12, 0))
	_, err := g.GenerateStatsForDate(ctx, day(2025, 1, 1))
	require.NoError(t, err)

	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "late", IP: "203.0.113.99", Start: utc(2025, 1, 1, 23, 0)})

	setFakeNow(t, utc(2025, 1, 2, 0, 30))
	ds, err := g.GenerateStatsForDate(ctx, day(2025, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), ds.TotalVisitors)

	stored, err := q.GetDailyStat(ctx, "2025-01-01")
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(utc(2025, 1, 1, 12, 0)), "created_at survives the overwrite")
	assert.True(t, stored.UpdatedAt.Equal(utc(2025, 1, 2, 0, 30)))

	assert.Equal(t, 2, inv.calls)

	logs, err := q.ListLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, string(audit.ActionUpdate), logs[0].Action)
	assert.Equal(t, "daily_stats", logs[0].EntityType)
	assert.Equal(t, "2025-01-01", logs[0].EntityID)
	assert.True(t, logs[0].BeforeValue.Valid)
	assert.Equal(t, string(audit.ActionCreate), logs[1].Action)
	assert.False(t, logs[1].BeforeValue.Valid)
}

// seedMixedDay stores a day with shared IPs, a bot, a visitor returning
// from the previous day and a page view without a session.
func seedMixedDay(t *testing.T, q *store.Queries) {
	t.Helper()
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "yesterday-a", IP: "10.0.0.1", Start: utc(2024, 12, 31, 20, 0)})
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "yesterday-bot", IP: "10.0.0.4", IsBot: true, Start: utc(2024, 12, 31, 20, 0)})

	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "a1", IP: "10.0.0.1", DeviceType: DeviceDesktop,
		Start: utc(2025, 1, 1, 8, 0), End: utc(2025, 1, 1, 8, 2)})
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "a2", IP: "10.0.0.1", DeviceType: DeviceMobile,
		Start: utc(2025, 1, 1, 9, 0)})
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "b1", IP: "10.0.0.2", DeviceType: DeviceTablet,
		Start: utc(2025, 1, 1, 10, 0), End: utc(2025, 1, 1, 10, 1).Add(time.Second)})
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "c1", IP: "10.0.0.3", DeviceType: DeviceDesktop,
		Start: utc(2025, 1, 1, 23, 59)})
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "bot1", IP: "10.0.0.4", IsBot: true,
		Start: utc(2025, 1, 1, 11, 0)})

	dbtest.SeedPageView(t, q, "a1", "/", utc(2025, 1, 1, 8, 0))
	dbtest.SeedPageView(t, q, "a1", "/berita", utc(2025, 1, 1, 8, 1))
	dbtest.SeedPageView(t, q, "a2", "/", utc(2025, 1, 1, 9, 0))
	dbtest.SeedPageView(t, q, "b1", "/profil", utc(2025, 1, 1, 10, 0))
	dbtest.SeedPageView(t, q, "bot1", "/", utc(2025, 1, 1, 11, 0))
	dbtest.SeedPageView(t, q, "bot1", "/a", utc(2025, 1, 1, 11, 0))
	dbtest.SeedPageView(t, q, "bot1", "/b", utc(2025, 1, 1, 11, 0))
	dbtest.SeedPageView(t, q, "no-session", "/kontak", utc(2025, 1, 1, 12, 0))
}

func TestComputeDay_MixedTraffic(t *testing.T) {
	q := newTestQueries(t)
	seedMixedDay(t, q)

	ds, err := NewAggregator(q, time.UTC).ComputeDay(context.Background(), day(2025, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(4), ds.TotalVisitors, "bot session excluded")
	assert.Equal(t, int64(3), ds.UniqueVisitors)
	assert.Equal(t, int64(5), ds.TotalPageViews, "bot views excluded, dangling view counted")
	assert.Equal(t, int64(2), ds.DesktopUsers)
	assert.Equal(t, int64(1), ds.MobileUsers)
	assert.Equal(t, int64(1), ds.TabletUsers)
	assert.Equal(t, 50.0, ds.BounceRate, "a2 and b1 viewed one page each")
	assert.Equal(t, 90.5, ds.AvgSessionDuration, "only a1 (120s) and b1 (61s) have durations")

	// Invariants.
	assert.LessOrEqual(t, ds.UniqueVisitors, ds.TotalVisitors)
	assert.LessOrEqual(t, ds.NewUsers+ds.ReturningUsers, ds.UniqueVisitors)
	assert.Equal(t, ds.TotalVisitors, ds.DesktopUsers+ds.MobileUsers+ds.TabletUsers)
}

// Returning visitors are identified by IP alone: an address is returning on
// a day when it had a non-bot session before that day began. This is an
// approximation; visitors behind a shared NAT are merged.
func TestComputeDay_ReturningUserAssumptionIsPriorSessionFromSameIP(t *testing.T) {
	q := newTestQueries(t)
	seedMixedDay(t, q)

	ds, err := NewAggregator(q, time.UTC).ComputeDay(context.Background(), day(2025, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(1), ds.ReturningUsers, "10.0.0.1 visited on 2024-12-31")
	assert.Equal(t, int64(2), ds.NewUsers)
}

func TestComputeDay_ZeroSessions(t *testing.T) {
	q := newTestQueries(t)

	ds, err := NewAggregator(q, time.UTC).ComputeDay(context.Background(), day(2025, 2, 1))
	require.NoError(t, err)

	assert.Equal(t, store.DailyStat{StatDate: "2025-02-01"}, ds)
	assert.Equal(t, 0.0, ds.BounceRate)
}

func TestComputeDay_ReferenceTimezone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	q := newTestQueries(t)
	// 18:00Z on Jan 1 is 01:00 on Jan 2 in Jakarta.
	dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: "night", Start: utc(2025, 1, 1, 18, 0)})

	agg := NewAggregator(q, jakarta)
	jan1, err := agg.ComputeDay(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, jakarta))
	require.NoError(t, err)
	jan2, err := agg.ComputeDay(context.Background(), time.Date(2025, 1, 2, 0, 0, 0, 0, jakarta))
	require.NoError(t, err)

	assert.Equal(t, int64(0), jan1.TotalVisitors)
	assert.Equal(t, int64(1), jan2.TotalVisitors)
}

func TestGenerateStatsForRange(t *testing.T) {
	q := newTestQueries(t)
	seedMobileVisit(t, q)
	setFakeNow(t, utc(2025, 1, 5, 0, 0))

	res, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForRange(context.Background(), day(2024, 12, 31), day(2025, 1, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "2024-12-31", res.Results[0].Date)
	assert.Equal(t, int64(1), res.Results[1].Stat.TotalVisitors)

	rows, err := q.ListDailyStats(context.Background(), "2024-12-31", "2025-01-02")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestGenerateStatsForRange_InvalidRange(t *testing.T) {
	q := newTestQueries(t)
	_, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForRange(context.Background(), day(2025, 1, 2), day(2025, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGenerateStatsForRange_TooLong(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = mockDB.Close() }()
	q := store.New(sqlx.NewDb(mockDB, "sqlmock"))

	res, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForRange(context.Background(), day(1, 1, 1), day(9999, 12, 31))
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Empty(t, res.Results)

	_, err = newTestGenerator(q, RollupOptions{MaxDays: 7}).GenerateStatsForRange(context.Background(), day(2025, 1, 1), day(2025, 1, 8))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = newTestGenerator(q, RollupOptions{MaxDays: 3}).GenerateRecent(context.Background(), 4)
	assert.ErrorIs(t, err, ErrInvalidRange)

	assert.NoError(t, mock.ExpectationsWereMet(), "no query runs for a rejected range")
}

func TestGenerateStatsForRange_AtMaxDays(t *testing.T) {
	q := newTestQueries(t)
	setFakeNow(t, utc(2025, 1, 10, 0, 0))

	res, err := newTestGenerator(q, RollupOptions{MaxDays: 3}).GenerateStatsForRange(context.Background(), day(2025, 1, 1), day(2025, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
}

func TestGenerateStatsForRange_PartialFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = mockDB.Close() }()
	q := store.New(sqlx.NewDb(mockDB, "sqlmock"))
	setFakeNow(t, utc(2025, 1, 5, 0, 0))

	// 2025-01-01 fails on its first query.
	mock.ExpectQuery(`AS uniq`).WillReturnError(errors.New("disk I/O error"))

	// 2025-01-02 is an empty day.
	mock.ExpectQuery(`AS uniq`).WillReturnRows(sqlmock.NewRows([]string{"total", "uniq"}).AddRow(0, 0))
	mock.ExpectQuery(`COUNT\(DISTINCT s\.ip_address\)`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(`FROM page_views pv`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(`AS label`).WillReturnRows(sqlmock.NewRows([]string{"label", "cnt"}))
	mock.ExpectQuery(`AVG\(duration\)`).WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))
	mock.ExpectQuery(`FROM daily_stats WHERE stat_date`).WillReturnRows(sqlmock.NewRows([]string{"stat_date"}))
	mock.ExpectExec(`INSERT INTO daily_stats`).WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForRange(context.Background(), day(2025, 1, 1), day(2025, 1, 2))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 2)
	assert.False(t, res.Results[0].Success)
	assert.Contains(t, res.Results[0].Error, "disk I/O error")
	assert.True(t, res.Results[1].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateStatsForRange_Cancelled(t *testing.T) {
	q := newTestQueries(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestGenerator(q, RollupOptions{}).GenerateStatsForRange(ctx, day(2025, 1, 1), day(2025, 1, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Failed)
}

func TestGenerateRecent(t *testing.T) {
	q := newTestQueries(t)
	setFakeNow(t, utc(2025, 1, 3, 6, 0))
	g := newTestGenerator(q, RollupOptions{})

	res, err := g.GenerateRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "2025-01-01", res.Results[0].Date)
	assert.Equal(t, "2025-01-02", res.Results[1].Date)

	res, err = g.GenerateRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

// Random traffic over a small IP pool, mixing bots, prior-day visits and a
// visit on the following day that must not leak into the computed day.
func TestComputeDay_RandomTrafficInvariants(t *testing.T) {
	const iterations = 40
	rng := rand.New(rand.NewSource(20250310))
	devices := []string{DeviceDesktop, DeviceMobile, DeviceTablet}
	target := day(2025, 3, 10)

	for it := 0; it < iterations; it++ {
		q := newTestQueries(t)
		ipPool := 1 + rng.Intn(8)
		ip := func() string { return fmt.Sprintf("198.51.100.%d", 1+rng.Intn(ipPool)) }

		wantDevices := map[string]int64{}
		todayIPs := map[string]bool{}
		priorIPs := map[string]bool{}
		var wantTotal, wantViews int64

		sessions := rng.Intn(30)
		for i := 0; i < sessions; i++ {
			id := fmt.Sprintf("s%d-%d", it, i)
			f := dbtest.SessionFixture{
				ID:         id,
				IP:         ip(),
				DeviceType: devices[rng.Intn(len(devices))],
				IsBot:      rng.Intn(5) == 0,
				Start:      target.Add(time.Duration(rng.Intn(24*60)) * time.Minute),
			}
			dbtest.SeedSession(t, q, f)
			views := rng.Intn(4)
			for v := 0; v < views; v++ {
				dbtest.SeedPageView(t, q, id, fmt.Sprintf("/p%d", v), f.Start.Add(time.Duration(v)*time.Second))
			}
			if f.IsBot {
				continue
			}
			wantTotal++
			wantViews += int64(views)
			wantDevices[f.DeviceType]++
			todayIPs[f.IP] = true
		}

		for i, n := 0, rng.Intn(10); i < n; i++ {
			f := dbtest.SessionFixture{
				ID:    fmt.Sprintf("prior%d-%d", it, i),
				IP:    ip(),
				IsBot: rng.Intn(4) == 0,
				Start: target.AddDate(0, 0, -1-rng.Intn(5)).Add(time.Duration(rng.Intn(24)) * time.Hour),
			}
			dbtest.SeedSession(t, q, f)
			if !f.IsBot {
				priorIPs[f.IP] = true
			}
		}
		dbtest.SeedSession(t, q, dbtest.SessionFixture{ID: fmt.Sprintf("next%d", it), IP: ip(),
			Start: target.AddDate(0, 0, 1).Add(time.Hour)})

		var wantReturning int64
		for a := range todayIPs {
			if priorIPs[a] {
				wantReturning++
			}
		}

		ds, err := NewAggregator(q, time.UTC).ComputeDay(context.Background(), target)
		require.NoError(t, err, "iteration %d", it)

		assert.Equal(t, wantTotal, ds.TotalVisitors, "iteration %d", it)
		assert.Equal(t, int64(len(todayIPs)), ds.UniqueVisitors, "iteration %d", it)
		assert.Equal(t, wantReturning, ds.ReturningUsers, "iteration %d", it)
		assert.Equal(t, wantViews, ds.TotalPageViews, "iteration %d", it)
		assert.Equal(t, wantDevices[DeviceDesktop], ds.DesktopUsers, "iteration %d", it)
		assert.Equal(t, wantDevices[DeviceMobile], ds.MobileUsers, "iteration %d", it)
		assert.Equal(t, wantDevices[DeviceTablet], ds.TabletUsers, "iteration %d", it)

		assert.LessOrEqual(t, ds.UniqueVisitors, ds.TotalVisitors, "iteration %d", it)
		assert.LessOrEqual(t, ds.NewUsers+ds.ReturningUsers, ds.UniqueVisitors, "iteration %d", it)
		assert.GreaterOrEqual(t, ds.NewUsers, int64(0), "iteration %d", it)
		assert.Equal(t, ds.TotalVisitors, ds.DesktopUsers+ds.MobileUsers+ds.TabletUsers, "iteration %d", it)
		assert.GreaterOrEqual(t, ds.BounceRate, 0.0, "iteration %d", it)
		assert.LessOrEqual(t, ds.BounceRate, 100.0, "iteration %d", it)
	}
}
