// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
)

const dailyStatColumns = `stat_date, total_visitors, unique_visitors, total_page_views, new_users,
	returning_users, desktop_users, mobile_users, tablet_users, bounce_rate, avg_session_duration,
	created_at, updated_at`

// GetDailyStat returns the rollup for a date (YYYY-MM-DD), or sql.ErrNoRows.
func (q *Queries) GetDailyStat(ctx context.Context, date string) (DailyStat, error) {
	var ds DailyStat
	err := q.get(ctx, &ds, `SELECT `+dailyStatColumns+` FROM daily_stats WHERE stat_date = ?`, date)
	return ds, err
}

// ListDailyStats returns the rollups between two dates inclusive, oldest first.
func (q *Queries) ListDailyStats(ctx context.Context, from, to string) ([]DailyStat, error) {
	var stats []DailyStat
	err := q.selectRows(ctx, &stats, `SELECT `+dailyStatColumns+` FROM daily_stats
		WHERE stat_date >= ? AND stat_date <= ?
		ORDER BY stat_date`, from, to)
	return stats, err
}

// UpsertDailyStat inserts the rollup or overwrites every counter of an
// existing row for the same date. created_at survives an overwrite.
func (q *Queries) UpsertDailyStat(ctx context.Context, ds DailyStat) error {
	var query string
	switch q.dialect {
	case DialectMySQL:
		query = `INSERT INTO daily_stats (` + dailyStatColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				total_visitors = VALUES(total_visitors),
				unique_visitors = VALUES(unique_visitors),
				total_page_views = VALUES(total_page_views),
				new_users = VALUES(new_users),
				returning_users = VALUES(returning_users),
				desktop_users = VALUES(desktop_users),
				mobile_users = VALUES(mobile_users),
				tablet_users = VALUES(tablet_users),
				bounce_rate = VALUES(bounce_rate),
				avg_session_duration = VALUES(avg_session_duration),
				updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO daily_stats (` + dailyStatColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (stat_date) DO UPDATE SET
				total_visitors = excluded.total_visitors,
				unique_visitors = excluded.unique_visitors,
				total_page_views = excluded.total_page_views,
				new_users = excluded.new_users,
				returning_users = excluded.returning_users,
				desktop_users = excluded.desktop_users,
				mobile_users = excluded.mobile_users,
				tablet_users = excluded.tablet_users,
				bounce_rate = excluded.bounce_rate,
				avg_session_duration = excluded.avg_session_duration,
				updated_at = excluded.updated_at`
	}

	_, err := q.exec(ctx, query,
		ds.StatDate, ds.TotalVisitors, ds.UniqueVisitors, ds.TotalPageViews, ds.NewUsers,
		ds.ReturningUsers, ds.DesktopUsers, ds.MobileUsers, ds.TabletUsers, ds.BounceRate,
		ds.AvgSessionDuration, ds.CreatedAt.UTC(), ds.UpdatedAt.UTC(),
	)
	return err
}

// DeleteDailyStat removes the rollup for a date.
func (q *Queries) DeleteDailyStat(ctx context.Context, date string) error {
	_, err := q.exec(ctx, `DELETE FROM daily_stats WHERE stat_date = ?`, date)
	return err
}
