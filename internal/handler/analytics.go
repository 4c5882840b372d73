// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/google/uuid"

	"github.com/olegiv/desa-go/internal/analytics"
	"github.com/olegiv/desa-go/internal/middleware"
)

// Tracker records visitor activity.
type Tracker interface {
	StartSession(ctx context.Context, in analytics.SessionInput) error
	RecordPageView(ctx context.Context, in analytics.PageViewInput) error
	RecordPageExit(ctx context.Context, sessionID, page string, timeOnPage int64) error
	EndSession(ctx context.Context, sessionID string) error
}

// AnalyticsHandler serves the public tracking endpoints.
type AnalyticsHandler struct {
	tracker Tracker
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(tracker Tracker, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{tracker: tracker, logger: logger}
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
	Page      string `json:"page"`
	Referrer  string `json:"referrer"`
	UserAgent string `json:"userAgent"`
}

type pageViewRequest struct {
	SessionID string `json:"sessionId"`
	Page      string `json:"page"`
	Title     string `json:"title"`
	UserID    int64  `json:"userId"`
}

type pageExitRequest struct {
	SessionID  string  `json:"sessionId"`
	Page       string  `json:"page"`
	TimeOnPage float64 `json:"timeOnPage"`
}

type sessionEndRequest struct {
	SessionID string `json:"sessionId"`
}

// StartSession handles POST /api/analytics/session.
// A session id is minted when the client does not send one.
func (h *AnalyticsHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}

	err := h.tracker.StartSession(r.Context(), analytics.SessionInput{
		SessionID:      req.SessionID,
		IP:             middleware.ClientIP(r),
		UserAgent:      ua,
		Referrer:       req.Referrer,
		LandingPage:    req.Page,
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		h.writeTrackError(w, err)
		return
	}
	writeJSONSuccess(w, map[string]any{"sessionId": req.SessionID})
}

// RecordPageView handles POST /api/analytics/pageview.
func (h *AnalyticsHandler) RecordPageView(w http.ResponseWriter, r *http.Request) {
	var req pageViewRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.tracker.RecordPageView(r.Context(), analytics.PageViewInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Page:      req.Page,
		Title:     req.Title,
	})
	if err != nil {
		h.writeTrackError(w, err)
		return
	}
	writeJSONSuccess(w, nil)
}

// RecordPageExit handles POST /api/analytics/page-exit.
// timeOnPage is in seconds; fractions are rounded.
func (h *AnalyticsHandler) RecordPageExit(w http.ResponseWriter, r *http.Request) {
	var req pageExitRequest
	if !h.decode(w, r, &req) {
		return
	}

	seconds := int64(math.Round(req.TimeOnPage))
	if err := h.tracker.RecordPageExit(r.Context(), req.SessionID, req.Page, seconds); err != nil {
		h.writeTrackError(w, err)
		return
	}
	writeJSONSuccess(w, nil)
}

// EndSession handles POST /api/analytics/session/end.
func (h *AnalyticsHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.tracker.EndSession(r.Context(), req.SessionID); err != nil {
		h.writeTrackError(w, err)
		return
	}
	writeJSONSuccess(w, nil)
}

func (h *AnalyticsHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSONBody(w, r, dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *AnalyticsHandler) writeTrackError(w http.ResponseWriter, err error) {
	if errors.Is(err, analytics.ErrInvalidEvent) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("tracking request failed", "error", err, "category", "ingest")
	writeJSONError(w, http.StatusInternalServerError, "failed to record event")
}
