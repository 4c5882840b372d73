// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dimension is a session column that can be grouped on.
type Dimension string

const (
	DimDevice   Dimension = "device_type"
	DimBrowser  Dimension = "browser"
	DimOS       Dimension = "os"
	DimCountry  Dimension = "country"
	DimLanguage Dimension = "language"
	DimReferrer Dimension = "referrer_domain"
)

func (d Dimension) valid() bool {
	switch d {
	case DimDevice, DimBrowser, DimOS, DimCountry, DimLanguage, DimReferrer:
		return true
	}
	return false
}

// All aggregates below exclude bot sessions. Page views whose session is
// unknown are counted as human traffic.

type sessionCounts struct {
	Total  int64 `db:"total"`
	Unique int64 `db:"uniq"`
}

// CountSessions returns the number of sessions started in the window and
// the number of distinct IP addresses among them.
func (q *Queries) CountSessions(ctx context.Context, w Window) (total, unique int64, err error) {
	var c sessionCounts
	err = q.get(ctx, &c, `SELECT COUNT(*) AS total, COUNT(DISTINCT ip_address) AS uniq
		FROM sessions
		WHERE start_time >= ? AND start_time < ? AND is_bot = ?`,
		w.Start.UTC(), w.End.UTC(), false)
	return c.Total, c.Unique, err
}

// CountReturningVisitors returns how many distinct IPs seen in the window
// already had a session before the window started.
func (q *Queries) CountReturningVisitors(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(DISTINCT s.ip_address)
		FROM sessions s
		WHERE s.start_time >= ? AND s.start_time < ? AND s.is_bot = ?
		AND EXISTS (
			SELECT 1 FROM sessions p
			WHERE p.ip_address = s.ip_address AND p.start_time < ? AND p.is_bot = ?
		)`,
		w.Start.UTC(), w.End.UTC(), false, w.Start.UTC(), false)
	return n, err
}

// CountPageViews returns the number of page views in the window.
func (q *Queries) CountPageViews(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*)
		FROM page_views pv
		LEFT JOIN sessions s ON s.session_id = pv.session_id
		WHERE pv.viewed_at >= ? AND pv.viewed_at < ?
		AND (s.is_bot IS NULL OR s.is_bot = ?)`,
		w.Start.UTC(), w.End.UTC(), false)
	return n, err
}

// CountBouncedSessions returns the number of sessions started in the window
// that have exactly one page view in the window.
func (q *Queries) CountBouncedSessions(ctx context.Context, w Window) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM (
			SELECT s.session_id
			FROM sessions s
			JOIN page_views pv ON pv.session_id = s.session_id
				AND pv.viewed_at >= ? AND pv.viewed_at < ?
			WHERE s.start_time >= ? AND s.start_time < ? AND s.is_bot = ?
			GROUP BY s.session_id
			HAVING COUNT(pv.id) = 1
		) bounced`,
		w.Start.UTC(), w.End.UTC(), w.Start.UTC(), w.End.UTC(), false)
	return n, err
}

// AverageSessionDuration returns the mean recorded duration of sessions
// started in the window. It is invalid when no session has a duration.
func (q *Queries) AverageSessionDuration(ctx context.Context, w Window) (sql.NullFloat64, error) {
	var avg sql.NullFloat64
	err := q.get(ctx, &avg, `SELECT AVG(duration)
		FROM sessions
		WHERE start_time >= ? AND start_time < ? AND is_bot = ? AND duration IS NOT NULL`,
		w.Start.UTC(), w.End.UTC(), false)
	return avg, err
}

// Breakdown groups sessions started in the window by a dimension, largest first.
// limit <= 0 returns every group.
func (q *Queries) Breakdown(ctx context.Context, w Window, dim Dimension, limit int) ([]GroupCount, error) {
	if !dim.valid() {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	query := `SELECT ` + string(dim) + ` AS label, COUNT(*) AS cnt
		FROM sessions
		WHERE start_time >= ? AND start_time < ? AND is_bot = ?
		GROUP BY ` + string(dim) + `
		ORDER BY cnt DESC, label ASC`
	args := []any{w.Start.UTC(), w.End.UTC(), false}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows := []GroupCount{}
	err := q.selectRows(ctx, &rows, query, args...)
	return rows, err
}

// CityBreakdown groups sessions with a known city by country and city.
func (q *Queries) CityBreakdown(ctx context.Context, w Window, limit int) ([]CityCount, error) {
	rows := []CityCount{}
	err := q.selectRows(ctx, &rows, `SELECT country, city, COUNT(*) AS cnt
		FROM sessions
		WHERE start_time >= ? AND start_time < ? AND is_bot = ? AND city <> ''
		GROUP BY country, city
		ORDER BY cnt DESC, country ASC, city ASC
		LIMIT ?`,
		w.Start.UTC(), w.End.UTC(), false, limit)
	return rows, err
}

// TopPages returns the most viewed pages in the window. Ties on views are
// broken by page path ascending.
func (q *Queries) TopPages(ctx context.Context, w Window, limit int) ([]PageStat, error) {
	rows := []PageStat{}
	err := q.selectRows(ctx, &rows, `SELECT pv.page AS page,
			MAX(pv.title) AS title,
			COUNT(*) AS views,
			COUNT(DISTINCT pv.session_id) AS unique_sessions,
			AVG(pv.time_on_page) AS avg_time_on_page
		FROM page_views pv
		LEFT JOIN sessions s ON s.session_id = pv.session_id
		WHERE pv.viewed_at >= ? AND pv.viewed_at < ?
		AND (s.is_bot IS NULL OR s.is_bot = ?)
		GROUP BY pv.page
		ORDER BY views DESC, pv.page ASC
		LIMIT ?`,
		w.Start.UTC(), w.End.UTC(), false, limit)
	return rows, err
}

// EachSessionStart calls fn with the start time of every non-bot session in
// the window. Rows are streamed, so memory use does not grow with the window.
// An error from fn stops the iteration and is returned.
func (q *Queries) EachSessionStart(ctx context.Context, w Window, fn func(time.Time) error) error {
	rows, err := q.db.QueryxContext(ctx, q.db.Rebind(`SELECT start_time
		FROM sessions
		WHERE start_time >= ? AND start_time < ? AND is_bot = ?`),
		w.Start.UTC(), w.End.UTC(), false)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountActiveSessions returns the sessions without an end time that started at or after since.
func (q *Queries) CountActiveSessions(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*)
		FROM sessions
		WHERE end_time IS NULL AND start_time >= ? AND is_bot = ?`,
		since.UTC(), false)
	return n, err
}

// ActivePages returns the pages viewed at or after since, most viewed first.
func (q *Queries) ActivePages(ctx context.Context, since time.Time, limit int) ([]GroupCount, error) {
	rows := []GroupCount{}
	err := q.selectRows(ctx, &rows, `SELECT pv.page AS label, COUNT(*) AS cnt
		FROM page_views pv
		LEFT JOIN sessions s ON s.session_id = pv.session_id
		WHERE pv.viewed_at >= ? AND (s.is_bot IS NULL OR s.is_bot = ?)
		GROUP BY pv.page
		ORDER BY cnt DESC, label ASC
		LIMIT ?`,
		since.UTC(), false, limit)
	return rows, err
}
