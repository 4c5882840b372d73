// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver string
		want   Dialect
	}{
		{"sqlite", DialectSQLite},
		{"sqlite3", DialectSQLite},
		{"sqlmock", DialectSQLite},
		{"mysql", DialectMySQL},
		{"postgres", DialectPostgres},
		{"pgx", DialectPostgres},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DialectFor(tt.driver), tt.driver)
	}
}

func TestGooseDialect(t *testing.T) {
	name, dir := DialectMySQL.gooseDialect()
	assert.Equal(t, "mysql", name)
	assert.Equal(t, "migrations/mysql", dir)

	name, dir = DialectPostgres.gooseDialect()
	assert.Equal(t, "postgres", name)
	assert.Equal(t, "migrations/postgres", dir)

	name, dir = DialectSQLite.gooseDialect()
	assert.Equal(t, "sqlite3", name)
	assert.Equal(t, "migrations/sqlite", dir)
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, dir := range []string{"migrations/sqlite", "migrations/mysql", "migrations/postgres"} {
		entries, err := migrations.ReadDir(dir)
		require.NoError(t, err, dir)
		assert.Len(t, entries, 2, dir)
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		dsn     string
		want    string
		wantErr bool
	}{
		{"sqlite plain path", "sqlite", "./data/desa.db", "./data/desa.db?_time_format=sqlite", false},
		{"sqlite with params", "sqlite", "file:desa.db?cache=shared", "file:desa.db?cache=shared&_time_format=sqlite", false},
		{"sqlite already set", "sqlite", "desa.db?_time_format=sqlite", "desa.db?_time_format=sqlite", false},
		{"postgres untouched", "postgres", "postgres://u:p@db/desa", "postgres://u:p@db/desa", false},
		{"mysql invalid", "mysql", "not a dsn", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDSN(tt.driver, tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDSN_MySQLParsesTime(t *testing.T) {
	got, err := normalizeDSN("mysql", "desa:secret@tcp(localhost:3306)/desa?loc=Local")
	require.NoError(t, err)
	assert.Contains(t, got, "parseTime=true")
	assert.NotContains(t, got, "loc=Local")
}
