// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package audit records administrative actions in the append-only log table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/desa-go/internal/store"
)

// Action is the kind of administrative action being recorded.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"
	ActionView     Action = "view"
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin,
		ActionLogout, ActionView, ActionDownload, ActionUpload:
		return true
	}
	return false
}

// ErrInvalidAction is returned when an entry carries an unknown action.
var ErrInvalidAction = errors.New("invalid audit action")

// SystemActor is recorded when no actor travels in the context, e.g. for cron jobs.
const SystemActor = "system"

// Entry describes one action. Before and After are marshalled to JSON;
// nil snapshots are stored as NULL.
type Entry struct {
	Action     Action
	EntityType string
	EntityID   string
	Before     any
	After      any
}

// Actor identifies who performed an action.
type Actor struct {
	ID   int64 // 0 when the actor has no account
	Name string
	IP   string
}

type actorKey struct{}

// WithActor returns a context carrying the acting user.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// timeNow is replaced in tests.
var timeNow = time.Now

// Service writes and reads audit entries.
type Service struct {
	queries *store.Queries
	logger  *slog.Logger
}

// NewService creates an audit service.
func NewService(queries *store.Queries, logger *slog.Logger) *Service {
	return &Service{queries: queries, logger: logger}
}

// Record appends an entry attributed to the actor in ctx.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, e.Action)
	}

	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("encoding before snapshot: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("encoding after snapshot: %w", err)
	}

	actor, ok := ActorFrom(ctx)
	if !ok || actor.Name == "" {
		actor.Name = SystemActor
	}

	params := store.CreateLogParams{
		Action:      string(e.Action),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		ActorName:   actor.Name,
		BeforeValue: before,
		AfterValue:  after,
		IPAddress:   actor.IP,
		CreatedAt:   timeNow(),
	}
	if actor.ID > 0 {
		params.ActorID = sql.NullInt64{Int64: actor.ID, Valid: true}
	}

	if _, err := s.queries.CreateLog(ctx, params); err != nil {
		s.logger.Error("failed to write audit log", "error", err, "action", e.Action, "entity", e.EntityType)
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// List returns a page of entries, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]store.Log, int64, error) {
	logs, err := s.queries.ListLogs(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit logs: %w", err)
	}
	total, err := s.queries.CountLogs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}
	return logs, total, nil
}

// DetachActor removes the reference to a deleted account from its entries.
func (s *Service) DetachActor(ctx context.Context, actorID int64) (int64, error) {
	n, err := s.queries.DetachLogActor(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("detaching audit actor: %w", err)
	}
	return n, nil
}

func snapshot(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
