// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// CreatePageViewParams holds the columns written for a page view.
type CreatePageViewParams struct {
	SessionID string
	UserID    sql.NullInt64
	Page      string
	Title     string
	ViewedAt  time.Time
}

// CreatePageView appends a page view and returns its id.
func (q *Queries) CreatePageView(ctx context.Context, arg CreatePageViewParams) (int64, error) {
	return q.insertID(ctx, `INSERT INTO page_views (session_id, user_id, page, title, viewed_at, is_exit_page)
		VALUES (?, ?, ?, ?, ?, ?)`,
		arg.SessionID, arg.UserID, arg.Page, arg.Title, arg.ViewedAt.UTC(), false)
}

// GetPageView returns a page view by id.
func (q *Queries) GetPageView(ctx context.Context, id int64) (PageView, error) {
	var pv PageView
	err := q.get(ctx, &pv, `SELECT id, session_id, user_id, page, title, viewed_at, time_on_page, is_exit_page
		FROM page_views WHERE id = ?`, id)
	return pv, err
}

// ListSessionPageViews returns the page views of a session in view order.
func (q *Queries) ListSessionPageViews(ctx context.Context, sessionID string) ([]PageView, error) {
	var views []PageView
	err := q.selectRows(ctx, &views, `SELECT id, session_id, user_id, page, title, viewed_at, time_on_page, is_exit_page
		FROM page_views WHERE session_id = ? ORDER BY viewed_at, id`, sessionID)
	return views, err
}

// LatestPageViewID returns the id of the most recent view of page in the
// session, or sql.ErrNoRows.
func (q *Queries) LatestPageViewID(ctx context.Context, sessionID, page string) (int64, error) {
	var id int64
	err := q.get(ctx, &id, `SELECT id FROM page_views
		WHERE session_id = ? AND page = ?
		ORDER BY viewed_at DESC, id DESC
		LIMIT 1`, sessionID, page)
	return id, err
}

// MarkPageExit records the time spent on a page view and flags it as the exit page.
func (q *Queries) MarkPageExit(ctx context.Context, id int64, timeOnPage int64) error {
	_, err := q.exec(ctx, `UPDATE page_views SET time_on_page = ?, is_exit_page = ? WHERE id = ?`,
		timeOnPage, true, id)
	return err
}

// ClearExitFlags unsets the exit flag on every view of the session except keepID.
func (q *Queries) ClearExitFlags(ctx context.Context, sessionID string, keepID int64) error {
	_, err := q.exec(ctx, `UPDATE page_views SET is_exit_page = ?
		WHERE session_id = ? AND id <> ? AND is_exit_page = ?`,
		false, sessionID, keepID, true)
	return err
}

// SeedPageView inserts a fully specified page view row.
func (q *Queries) SeedPageView(ctx context.Context, pv PageView) (int64, error) {
	return q.insertID(ctx, `INSERT INTO page_views (session_id, user_id, page, title, viewed_at, time_on_page, is_exit_page)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pv.SessionID, pv.UserID, pv.Page, pv.Title, pv.ViewedAt.UTC(), pv.TimeOnPage, pv.IsExitPage)
}
