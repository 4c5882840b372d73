// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides database access for sessions, page views, daily
// rollups and the audit log across SQLite, MySQL and PostgreSQL.
package store

import (
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"  // PostgreSQL driver for database/sql
	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

//go:embed migrations
var migrations embed.FS

// Dialect identifies the SQL flavour a database speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DialectFor maps a database/sql driver name to its dialect.
// Unknown drivers (for example sqlmock) fall back to SQLite syntax.
func DialectFor(driver string) Dialect {
	switch driver {
	case "mysql":
		return DialectMySQL
	case "postgres", "pgx":
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// gooseDialect returns the goose dialect name and migrations directory.
func (d Dialect) gooseDialect() (name, dir string) {
	switch d {
	case DialectMySQL:
		return "mysql", "migrations/mysql"
	case DialectPostgres:
		return "postgres", "migrations/postgres"
	default:
		return "sqlite3", "migrations/sqlite"
	}
}

// DBConfig holds database configuration options.
type DBConfig struct {
	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns sensible pool defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		// SQLite with WAL mode supports multiple readers but single writer
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewDB opens a database connection for the given driver.
func NewDB(driver, dsn string) (*sqlx.DB, error) {
	return NewDBWithConfig(driver, dsn, DefaultDBConfig())
}

// NewDBWithConfig opens a database connection with a custom pool configuration.
// Timestamps are always written and read in UTC.
func NewDBWithConfig(driver, dsn string, cfg DBConfig) (*sqlx.DB, error) {
	dsn, err := normalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if DialectFor(driver) == DialectSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
			"PRAGMA busy_timeout=5000",  // Wait 5s when database is locked
			"PRAGMA synchronous=NORMAL", // Good balance of safety and speed
			"PRAGMA cache_size=-64000",  // 64MB cache
			"PRAGMA temp_store=MEMORY",  // Store temp tables in memory
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// normalizeDSN forces UTC timestamp handling on drivers that need it.
func normalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case "mysql":
		mcfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parsing mysql dsn: %w", err)
		}
		mcfg.ParseTime = true
		mcfg.Loc = time.UTC
		return mcfg.FormatDSN(), nil
	case "sqlite":
		// modernc.org/sqlite writes time.Time values as time.String() unless told otherwise.
		if strings.Contains(dsn, "_time_format=") {
			return dsn, nil
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_time_format=sqlite", nil
	default:
		return dsn, nil
	}
}

// Migrate runs all pending database migrations for the connection's dialect.
func Migrate(db *sqlx.DB) error {
	name, dir := DialectFor(db.DriverName()).gooseDialect()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.Up(db.DB, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// MigrationStatus logs the applied state of every migration.
func MigrationStatus(db *sqlx.DB) error {
	name, dir := DialectFor(db.DriverName()).gooseDialect()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.Status(db.DB, dir); err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	return nil
}

// MigrationVersion returns the current schema version.
func MigrationVersion(db *sqlx.DB) (int64, error) {
	name, _ := DialectFor(db.DriverName()).gooseDialect()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(name); err != nil {
		return 0, fmt.Errorf("setting dialect: %w", err)
	}

	v, err := goose.GetDBVersion(db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}
