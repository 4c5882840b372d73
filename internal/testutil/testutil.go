// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the desa project.
package testutil

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/desa-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a completely silent test logger (error level only).
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary SQLite test database with migrations applied.
// Returns the database and a cleanup function that should be deferred.
func TestDB(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "desa-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	dbPath := f.Name()
	_ = f.Close()

	db, err := store.NewDB("sqlite3", dbPath)
	if err != nil {
		_ = os.Remove(dbPath)
		t.Fatalf("NewDB: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		_ = os.Remove(dbPath)
		t.Fatalf("Migrate: %v", err)
	}

	return db, func() {
		_ = db.Close()
		_ = os.Remove(dbPath)
	}
}

// SessionFixture describes a session to seed. Zero values get sensible defaults.
type SessionFixture struct {
	ID         string
	IP         string
	DeviceType string
	Browser    string
	OS         string
	Country    string
	City       string
	Referrer   string
	IsBot      bool
	Start      time.Time
	End        time.Time // zero means the session is still open
}

// SeedSession inserts a session fixture, failing the test on error.
func SeedSession(t *testing.T, q *store.Queries, f SessionFixture) {
	t.Helper()

	s := store.Session{
		SessionID:   f.ID,
		IPAddress:   orDefault(f.IP, "203.0.113.1"),
		UserAgent:   "test-agent",
		DeviceType:  orDefault(f.DeviceType, "desktop"),
		Browser:     orDefault(f.Browser, "Chrome"),
		OS:          orDefault(f.OS, "Windows"),
		Country:     f.Country,
		City:        f.City,
		Referrer:    f.Referrer,
		LandingPage: "/",
		IsBot:       f.IsBot,
		StartTime:   f.Start,
	}
	if !f.End.IsZero() {
		s.EndTime = sql.NullTime{Time: f.End, Valid: true}
		s.Duration = sql.NullInt64{Int64: int64(f.End.Sub(f.Start).Seconds()), Valid: true}
	}

	if err := q.SeedSession(context.Background(), s); err != nil {
		t.Fatalf("SeedSession(%s): %v", f.ID, err)
	}
}

// SeedPageView inserts a page view, failing the test on error.
func SeedPageView(t *testing.T, q *store.Queries, sessionID, page string, viewedAt time.Time) int64 {
	t.Helper()

	id, err := q.SeedPageView(context.Background(), store.PageView{
		SessionID: sessionID,
		Page:      page,
		Title:     page,
		ViewedAt:  viewedAt,
	})
	if err != nil {
		t.Fatalf("SeedPageView(%s, %s): %v", sessionID, page, err)
	}
	return id
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
