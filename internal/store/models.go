// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

// Session is one visitor's browsing interval.
type Session struct {
	ID             int64         `db:"id"`
	SessionID      string        `db:"session_id"`
	IPAddress      string        `db:"ip_address"`
	UserAgent      string        `db:"user_agent"`
	DeviceType     string        `db:"device_type"`
	Browser        string        `db:"browser"`
	BrowserVersion string        `db:"browser_version"`
	OS             string        `db:"os"`
	OSVersion      string        `db:"os_version"`
	Language       string        `db:"language"`
	Country        string        `db:"country"`
	City           string        `db:"city"`
	Referrer       string        `db:"referrer"`
	ReferrerDomain string        `db:"referrer_domain"`
	LandingPage    string        `db:"landing_page"`
	IsBot          bool          `db:"is_bot"`
	StartTime      time.Time     `db:"start_time"`
	EndTime        sql.NullTime  `db:"end_time"`
	Duration       sql.NullInt64 `db:"duration"`
}

// PageView is a single page visited within a session.
type PageView struct {
	ID         int64         `db:"id"`
	SessionID  string        `db:"session_id"`
	UserID     sql.NullInt64 `db:"user_id"`
	Page       string        `db:"page"`
	Title      string        `db:"title"`
	ViewedAt   time.Time     `db:"viewed_at"`
	TimeOnPage sql.NullInt64 `db:"time_on_page"`
	IsExitPage bool          `db:"is_exit_page"`
}

// DailyStat is the pre-aggregated rollup for one calendar date.
type DailyStat struct {
	StatDate           string    `db:"stat_date" json:"date"`
	TotalVisitors      int64     `db:"total_visitors" json:"totalVisitors"`
	UniqueVisitors     int64     `db:"unique_visitors" json:"uniqueVisitors"`
	TotalPageViews     int64     `db:"total_page_views" json:"totalPageViews"`
	NewUsers           int64     `db:"new_users" json:"newUsers"`
	ReturningUsers     int64     `db:"returning_users" json:"returningUsers"`
	DesktopUsers       int64     `db:"desktop_users" json:"desktopUsers"`
	MobileUsers        int64     `db:"mobile_users" json:"mobileUsers"`
	TabletUsers        int64     `db:"tablet_users" json:"tabletUsers"`
	BounceRate         float64   `db:"bounce_rate" json:"bounceRate"`
	AvgSessionDuration float64   `db:"avg_session_duration" json:"avgSessionDuration"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `db:"updated_at" json:"updatedAt"`
}

// Log is an append-only audit record of an administrative action.
type Log struct {
	ID          int64          `db:"id"`
	Action      string         `db:"action"`
	EntityType  string         `db:"entity_type"`
	EntityID    string         `db:"entity_id"`
	ActorID     sql.NullInt64  `db:"actor_id"`
	ActorName   string         `db:"actor_name"`
	BeforeValue sql.NullString `db:"before_value"`
	AfterValue  sql.NullString `db:"after_value"`
	IPAddress   string         `db:"ip_address"`
	CreatedAt   time.Time      `db:"created_at"`
}

// Event is a system event persisted from the application log.
type Event struct {
	ID        int64     `db:"id"`
	Level     string    `db:"level"`
	Category  string    `db:"category"`
	Message   string    `db:"message"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// GroupCount is one row of a grouped count.
type GroupCount struct {
	Label string `db:"label"`
	Count int64  `db:"cnt"`
}

// CityCount is one row of the city breakdown.
type CityCount struct {
	Country string `db:"country"`
	City    string `db:"city"`
	Count   int64  `db:"cnt"`
}

// PageStat is one row of the top pages list.
type PageStat struct {
	Page           string          `db:"page"`
	Title          sql.NullString  `db:"title"`
	Views          int64           `db:"views"`
	UniqueSessions int64           `db:"unique_sessions"`
	AvgTimeOnPage  sql.NullFloat64 `db:"avg_time_on_page"`
}
