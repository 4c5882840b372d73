// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Queries wraps a database handle with the analytics queries.
// It holds no state besides the handle and is safe for concurrent use.
type Queries struct {
	db      *sqlx.DB
	dialect Dialect
}

// New creates a Queries for the given database.
func New(db *sqlx.DB) *Queries {
	return &Queries{db: db, dialect: DialectFor(db.DriverName())}
}

// Dialect returns the SQL dialect of the underlying database.
func (q *Queries) Dialect() Dialect {
	return q.dialect
}

// Ping verifies the database connection is alive.
func (q *Queries) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return q.db.GetContext(ctx, dest, q.db.Rebind(query), args...)
}

func (q *Queries) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	return q.db.SelectContext(ctx, dest, q.db.Rebind(query), args...)
}

// insertID runs an INSERT and returns the generated id. PostgreSQL has no
// LastInsertId, so the statement is extended with RETURNING there.
func (q *Queries) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	if q.dialect == DialectPostgres {
		var id int64
		err := q.db.QueryRowxContext(ctx, q.db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
