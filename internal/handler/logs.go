// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/desa-go/internal/store"
)

// Page sizes for log listings.
const (
	defaultLogsPerPage = 50
	maxLogsPerPage     = 500
)

// AuditLister lists audit entries.
type AuditLister interface {
	List(ctx context.Context, limit, offset int) ([]store.Log, int64, error)
}

// LogsHandler serves the audit log and system event listings.
type LogsHandler struct {
	audit   AuditLister
	queries *store.Queries
	logger  *slog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(audit AuditLister, queries *store.Queries, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{audit: audit, queries: queries, logger: logger}
}

// LogEntry is the JSON form of an audit entry.
type LogEntry struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ActorID    *int64          `json:"actorId"`
	ActorName  string          `json:"actorName"`
	Before     json.RawMessage `json:"beforeValue"`
	After      json.RawMessage `json:"afterValue"`
	IPAddress  string          `json:"ipAddress"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EventEntry is the JSON form of a system event.
type EventEntry struct {
	ID        int64           `json:"id"`
	Level     string          `json:"level"`
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Logs handles GET /api/logs?limit=&offset=.
func (h *LogsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLogsPerPage, 1, maxLogsPerPage)
	offset := queryInt(r, "offset", 0, 0, int(^uint(0)>>1))

	logs, total, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list audit logs", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}

	entries := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		e := LogEntry{
			ID:         l.ID,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			ActorName:  l.ActorName,
			Before:     rawJSON(l.BeforeValue.String, l.BeforeValue.Valid),
			After:      rawJSON(l.AfterValue.String, l.AfterValue.Valid),
			IPAddress:  l.IPAddress,
			CreatedAt:  l.CreatedAt,
		}
		if l.ActorID.Valid {
			id := l.ActorID.Int64
			e.ActorID = &id
		}
		entries = append(entries, e)
	}

	writeJSONSuccess(w, map[string]any{
		"data": map[string]any{
			"logs":   entries,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// Events handles GET /api/events?limit=.
func (h *LogsHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLogsPerPage, 1, maxLogsPerPage)

	events, err := h.queries.ListEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	entries := make([]EventEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, EventEntry{
			ID:        e.ID,
			Level:     e.Level,
			Category:  e.Category,
			Message:   e.Message,
			Metadata:  rawJSON(e.Metadata, e.Metadata != ""),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSONSuccess(w, map[string]any{"data": entries})
}

// rawJSON passes stored JSON through, or null when absent or malformed.
func rawJSON(s string, valid bool) json.RawMessage {
	if !valid || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
