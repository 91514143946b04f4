// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles the relay's SQL schema.

# Schema Creation

CreateSchema initializes the pin index:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Drivers

The relay runs on SQLite (modernc.org/sqlite, default) or PostgreSQL
(lib/pq). DriverName maps the configured type to the driver name:

	driver, err := db.DriverName(cfg.DatabaseType)
	conn, err := sql.Open(driver, cfg.DatabaseURL)

Queries use $N placeholders, which both drivers accept.

# Tables

  - pin: one row per stored ballot document (cid unique, name, size,
    voter, session, pinned_at)

The document bytes themselves live in the badger blob store keyed by CID;
see package pinstore.
*/
package db
