// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/desa-go/internal/analytics"
)

// defaultTimeRange is used when a statistics request names no dates.
const defaultTimeRange = analytics.Range30Days

// StatisticsHandler serves the admin statistics endpoints.
type StatisticsHandler struct {
	queries *analytics.QueryService
	rollups *analytics.RollupGenerator
	logger  *slog.Logger
}

// NewStatisticsHandler creates a new StatisticsHandler.
func NewStatisticsHandler(queries *analytics.QueryService, rollups *analytics.RollupGenerator, logger *slog.Logger) *StatisticsHandler {
	return &StatisticsHandler{queries: queries, rollups: rollups, logger: logger}
}

// Statistics handles GET /api/statistics.
// The range is dateFrom&dateTo (YYYY-MM-DD) or a named timeRange
// (today, yesterday, 7d, 30d, 90d, 1y); explicit dates win.
func (h *StatisticsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(r, "limit", 0, 1, 100)

	var (
		rng analytics.DateRange
		err error
	)
	loc := h.queries.Location()
	switch {
	case q.Get("dateFrom") != "" || q.Get("dateTo") != "":
		rng, err = analytics.ParseDateRange(q.Get("dateFrom"), q.Get("dateTo"), loc)
	default:
		name := q.Get("timeRange")
		if name == "" {
			name = defaultTimeRange
		}
		rng, err = analytics.ResolveTimeRange(name, time.Now(), loc)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.queries.GetStatisticsForRange(r.Context(), rng, limit)
	if err != nil {
		h.writeQueryError(w, "statistics query failed", err)
		return
	}
	writeJSONData(w, report)
}

// Realtime handles GET /api/statistics/realtime.
func (h *StatisticsHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	rt, err := h.queries.GetRealtime(r.Context())
	if err != nil {
		h.writeQueryError(w, "realtime query failed", err)
		return
	}
	writeJSONData(w, rt)
}

type rollupRequest struct {
	Date     string `json:"date"`
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

// Rollup handles POST /api/statistics/rollup with {date}, {dateFrom,dateTo}
// or an empty body for yesterday. success is false if any date failed.
func (h *StatisticsHandler) Rollup(w http.ResponseWriter, r *http.Request) {
	var req rollupRequest
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loc := h.queries.Location()
	var (
		rng analytics.DateRange
		err error
	)
	switch {
	case req.Date != "":
		rng, err = analytics.ParseDateRange(req.Date, req.Date, loc)
	case req.DateFrom != "" || req.DateTo != "":
		rng, err = analytics.ParseDateRange(req.DateFrom, req.DateTo, loc)
	default:
		rng, err = analytics.ResolveTimeRange(analytics.RangeYesterday, time.Now(), loc)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.rollups.GenerateStatsForRange(r.Context(), rng.From, rng.To)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		h.writeQueryError(w, "rollup failed", err)
		return
	}

	h.logger.Info("manual rollup finished", "range", rng.String(),
		"succeeded", res.Succeeded, "failed", res.Failed, "category", "rollup")

	writeJSON(w, map[string]any{
		"success":   res.Failed == 0,
		"data":      res,
		"timestamp": time.Now().UTC(),
	})
}

func (h *StatisticsHandler) writeQueryError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidRange):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(msg, "error", err, "category", "query")
		writeJSONError(w, http.StatusGatewayTimeout, "query timed out")
	default:
		h.logger.Error(msg, "error", err, "category", "query")
		writeJSONError(w, http.StatusInternalServerError, "failed to load statistics")
	}
}
