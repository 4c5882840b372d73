// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateLogParams holds the columns of a new audit log entry.
type CreateLogParams struct {
	Action      string
	EntityType  string
	EntityID    string
	ActorID     sql.NullInt64
	ActorName   string
	BeforeValue sql.NullString
	AfterValue  sql.NullString
	IPAddress   string
	CreatedAt   time.Time
}

// CreateLog appends an audit log entry and returns its id.
func (q *Queries) CreateLog(ctx context.Context, arg CreateLogParams) (int64, error) {
	return q.insertID(ctx, `INSERT INTO logs (action, entity_type, entity_id, actor_id, actor_name,
			before_value, after_value, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.Action, arg.EntityType, arg.EntityID, arg.ActorID, arg.ActorName,
		arg.BeforeValue, arg.AfterValue, arg.IPAddress, arg.CreatedAt.UTC())
}

// ListLogs returns audit log entries, newest first.
func (q *Queries) ListLogs(ctx context.Context, limit, offset int) ([]Log, error) {
	logs := []Log{}
	err := q.selectRows(ctx, &logs, `SELECT id, action, entity_type, entity_id, actor_id, actor_name,
			before_value, after_value, ip_address, created_at
		FROM logs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	return logs, err
}

// CountLogs returns the total number of audit log entries.
func (q *Queries) CountLogs(ctx context.Context) (int64, error) {
	var n int64
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM logs`)
	return n, err
}

// DetachLogActor nulls the actor reference of every entry written by actorID.
// This is the only mutation audit entries allow.
func (q *Queries) DetachLogActor(ctx context.Context, actorID int64) (int64, error) {
	return q.exec(ctx, `UPDATE logs SET actor_id = NULL WHERE actor_id = ?`, actorID)
}
