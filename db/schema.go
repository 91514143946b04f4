// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// DriverName maps a configured database type to the database/sql driver.
func DriverName(dbType string) (string, error) {
	switch dbType {
	case TypeSQLite, "":
		return "sqlite", nil
	case TypePostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported database type %q", dbType)
}

// CreateSchema creates all tables needed for the relay.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// The schema sticks to types and defaults that SQLite and PostgreSQL share.
const schema = `
-- Pinned ballot documents (bytes live in the blob store)
CREATE TABLE IF NOT EXISTS pin (
    id TEXT PRIMARY KEY,
    cid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    size BIGINT NOT NULL CHECK (size >= 0),
    voter TEXT NOT NULL,
    session BIGINT NOT NULL,
    pinned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pin_session ON pin(session);
CREATE INDEX IF NOT EXISTS idx_pin_voter ON pin(voter, session);
`
