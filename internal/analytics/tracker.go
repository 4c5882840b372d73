// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"

	"github.com/olegiv/desa-go/internal/geoip"
	"github.com/olegiv/desa-go/internal/metrics"
	"github.com/olegiv/desa-go/internal/store"
)

// Field limits for tracked values.
const (
	maxSessionIDLen = 128
	maxPageLen      = 512
	maxTitleLen     = 255
	maxReferrerLen  = 1024
	maxUserAgentLen = 512
)

// Ingestion event names used in metrics.
const (
	EventSession    = "session"
	EventPageView   = "pageview"
	EventPageExit   = "page_exit"
	EventSessionEnd = "session_end"
)

// ErrInvalidEvent is returned when a tracking event lacks a required field.
var ErrInvalidEvent = errors.New("invalid tracking event")

// GeoLocator resolves an IP address to a location.
type GeoLocator interface {
	LookupLocation(ip string) geoip.Location
}

// SessionInput is a session start as reported by the browser beacon.
type SessionInput struct {
	SessionID      string
	IP             string
	UserAgent      string
	Referrer       string
	LandingPage    string
	AcceptLanguage string
}

// PageViewInput is a single page view.
type PageViewInput struct {
	SessionID string
	UserID    int64 // 0 for anonymous visitors
	Page      string
	Title     string
}

// Tracker records visitor sessions and page views.
type Tracker struct {
	queries   *store.Queries
	geo       GeoLocator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

// NewTracker creates a tracker. geo and m may be nil.
func NewTracker(queries *store.Queries, geo GeoLocator, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		queries:   queries,
		geo:       geo,
		metrics:   m,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// StartSession classifies the visitor and stores a new session.
// A session id that was already started is accepted and left unchanged.
func (t *Tracker) StartSession(ctx context.Context, in SessionInput) error {
	if err := validSessionID(in.SessionID); err != nil {
		t.metrics.IngestEvent(EventSession, metrics.ResultError)
		return err
	}

	ua := truncate(in.UserAgent, maxUserAgentLen)
	c := Classify(ua)
	referrer := truncate(strings.TrimSpace(in.Referrer), maxReferrerLen)

	var loc geoip.Location
	if t.geo != nil && in.IP != "" {
		loc = t.geo.LookupLocation(in.IP)
	}

	created, err := t.queries.CreateSession(ctx, store.CreateSessionParams{
		SessionID:      in.SessionID,
		IPAddress:      in.IP,
		UserAgent:      ua,
		DeviceType:     c.DeviceType,
		Browser:        c.Browser,
		BrowserVersion: c.BrowserVersion,
		OS:             c.OS,
		OSVersion:      c.OSVersion,
		Language:       primaryLanguage(in.AcceptLanguage),
		Country:        loc.Country,
		City:           loc.City,
		Referrer:       referrer,
		ReferrerDomain: extractReferrerDomain(referrer),
		LandingPage:    normalizePage(in.LandingPage),
		IsBot:          c.IsBot,
		StartTime:      timeNow().UTC(),
	})
	if err != nil {
		t.metrics.IngestEvent(EventSession, metrics.ResultError)
		t.logger.Error("failed to start session", "error", err, "category", "ingest")
		return fmt.Errorf("creating session: %w", err)
	}

	if !created {
		t.metrics.IngestEvent(EventSession, metrics.ResultNoop)
		return nil
	}
	t.metrics.IngestEvent(EventSession, metrics.ResultOK)
	return nil
}

// RecordPageView appends a page view. The session does not have to exist.
func (t *Tracker) RecordPageView(ctx context.Context, in PageViewInput) error {
	if err := validSessionID(in.SessionID); err != nil {
		t.metrics.IngestEvent(EventPageView, metrics.ResultError)
		return err
	}
	page := normalizePage(in.Page)
	if page == "" {
		t.metrics.IngestEvent(EventPageView, metrics.ResultError)
		return fmt.Errorf("%w: page is required", ErrInvalidEvent)
	}

	arg := store.CreatePageViewParams{
		SessionID: in.SessionID,
		Page:      page,
		Title:     t.sanitizeTitle(in.Title),
		ViewedAt:  timeNow().UTC(),
	}
	if in.UserID > 0 {
		arg.UserID = sql.NullInt64{Int64: in.UserID, Valid: true}
	}

	if _, err := t.queries.CreatePageView(ctx, arg); err != nil {
		t.metrics.IngestEvent(EventPageView, metrics.ResultError)
		t.logger.Error("failed to record page view", "error", err, "category", "ingest")
		return fmt.Errorf("creating page view: %w", err)
	}

	t.metrics.IngestEvent(EventPageView, metrics.ResultOK)
	return nil
}

// RecordPageExit stores the time spent on the most recent view of page in
// the session and marks it as the session's exit page. Nothing happens
// when no such view exists.
func (t *Tracker) RecordPageExit(ctx context.Context, sessionID, page string, timeOnPage int64) error {
	if err := validSessionID(sessionID); err != nil {
		t.metrics.IngestEvent(EventPageExit, metrics.ResultError)
		return err
	}
	page = normalizePage(page)
	if page == "" || timeOnPage < 0 {
		t.metrics.IngestEvent(EventPageExit, metrics.ResultError)
		return fmt.Errorf("%w: page and a non-negative time on page are required", ErrInvalidEvent)
	}

	id, err := t.queries.LatestPageViewID(ctx, sessionID, page)
	if errors.Is(err, sql.ErrNoRows) {
		t.metrics.IngestEvent(EventPageExit, metrics.ResultNoop)
		return nil
	}
	if err != nil {
		t.metrics.IngestEvent(EventPageExit, metrics.ResultError)
		return fmt.Errorf("finding page view: %w", err)
	}

	if err := t.queries.MarkPageExit(ctx, id, timeOnPage); err != nil {
		t.metrics.IngestEvent(EventPageExit, metrics.ResultError)
		t.logger.Error("failed to record page exit", "error", err, "category", "ingest")
		return fmt.Errorf("updating page view: %w", err)
	}
	// A session has a single exit page: the last one reported.
	if err := t.queries.ClearExitFlags(ctx, sessionID, id); err != nil {
		t.logger.Warn("failed to clear previous exit flags", "error", err, "category", "ingest")
	}

	t.metrics.IngestEvent(EventPageExit, metrics.ResultOK)
	return nil
}

// EndSession closes a session and records its duration in seconds.
// Unknown or already ended sessions are left unchanged.
func (t *Tracker) EndSession(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		t.metrics.IngestEvent(EventSessionEnd, metrics.ResultError)
		return err
	}

	s, err := t.queries.GetSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && s.EndTime.Valid) {
		t.metrics.IngestEvent(EventSessionEnd, metrics.ResultNoop)
		return nil
	}
	if err != nil {
		t.metrics.IngestEvent(EventSessionEnd, metrics.ResultError)
		return fmt.Errorf("loading session: %w", err)
	}

	end := timeNow().UTC()
	duration := int64(end.Sub(s.StartTime).Seconds())
	if duration < 0 {
		duration = 0
	}

	if _, err := t.queries.EndSession(ctx, sessionID, end, duration); err != nil {
		t.metrics.IngestEvent(EventSessionEnd, metrics.ResultError)
		t.logger.Error("failed to end session", "error", err, "category", "ingest")
		return fmt.Errorf("ending session: %w", err)
	}

	t.metrics.IngestEvent(EventSessionEnd, metrics.ResultOK)
	return nil
}

func (t *Tracker) sanitizeTitle(title string) string {
	clean := html.UnescapeString(t.sanitizer.Sanitize(title))
	return truncate(strings.TrimSpace(clean), maxTitleLen)
}

func validSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("%w: session id is too long", ErrInvalidEvent)
	}
	return nil
}

// normalizePage keeps the path of a page URL, dropping scheme, host,
// query and fragment.
func normalizePage(page string) string {
	page = strings.TrimSpace(page)
	if page == "" {
		return ""
	}
	if u, err := url.Parse(page); err == nil && u.Path != "" {
		page = u.Path
	} else if err == nil && u.Host != "" {
		page = "/"
	}
	if !strings.HasPrefix(page, "/") {
		page = "/" + page
	}
	return truncate(page, maxPageLen)
}

// extractReferrerDomain returns the lowercased host of a referrer URL
// without port and "www." prefix.
func extractReferrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// primaryLanguage returns the base language of the preferred tag in an
// Accept-Language header, e.g. "id" for "id-ID,en;q=0.8".
func primaryLanguage(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, conf := tags[0].Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Do not cut a multi-byte rune in half.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
