// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateSessionParams holds the columns written when a session starts.
type CreateSessionParams struct {
	SessionID      string
	IPAddress      string
	UserAgent      string
	DeviceType     string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Language       string
	Country        string
	City           string
	Referrer       string
	ReferrerDomain string
	LandingPage    string
	IsBot          bool
	StartTime      time.Time
}

const sessionColumns = `session_id, ip_address, user_agent, device_type, browser, browser_version,
	os, os_version, language, country, city, referrer, referrer_domain, landing_page, is_bot, start_time`

// CreateSession inserts a session. A session id that already exists is left
// untouched and reported as created=false.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (bool, error) {
	var query string
	switch q.dialect {
	case DialectMySQL:
		query = `INSERT IGNORE INTO sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	default:
		query = `INSERT INTO sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_id) DO NOTHING`
	}

	n, err := q.exec(ctx, query,
		arg.SessionID, arg.IPAddress, arg.UserAgent, arg.DeviceType, arg.Browser, arg.BrowserVersion,
		arg.OS, arg.OSVersion, arg.Language, arg.Country, arg.City, arg.Referrer, arg.ReferrerDomain,
		arg.LandingPage, arg.IsBot, arg.StartTime.UTC(),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSession returns the session with the given id, or sql.ErrNoRows.
func (q *Queries) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var s Session
	err := q.get(ctx, &s, `SELECT id, `+sessionColumns+`, end_time, duration
		FROM sessions WHERE session_id = ?`, sessionID)
	return s, err
}

// EndSession sets the end time and duration of a session that has not ended yet.
// It returns the number of rows changed (0 or 1).
func (q *Queries) EndSession(ctx context.Context, sessionID string, endTime time.Time, duration int64) (int64, error) {
	return q.exec(ctx, `UPDATE sessions SET end_time = ?, duration = ?
		WHERE session_id = ? AND end_time IS NULL`,
		endTime.UTC(), duration, sessionID)
}

// SeedSession inserts a fully specified session row, including its end.
// It is used by imports and tests that replay historical traffic.
func (q *Queries) SeedSession(ctx context.Context, s Session) error {
	_, err := q.exec(ctx, `INSERT INTO sessions (`+sessionColumns+`, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.IPAddress, s.UserAgent, s.DeviceType, s.Browser, s.BrowserVersion,
		s.OS, s.OSVersion, s.Language, s.Country, s.City, s.Referrer, s.ReferrerDomain,
		s.LandingPage, s.IsBot, s.StartTime.UTC(), utcNullTime(s.EndTime), s.Duration,
	)
	return err
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}
