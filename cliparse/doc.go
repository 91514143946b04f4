// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles the relay server's command-line and environment
configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseType: sqlite (default) or postgres
  - DatabaseURL: connection string (default for sqlite: quickly-vote-relay.db)
  - DataDir: badger blob directory (empty keeps blobs in memory)
  - APIKey: bearer key required on mutating endpoints (optional)

# CLI Flags

	-p          Server port
	-d          Database URL
	-t          Database type
	-data       Blob store directory
	-api-key    Relay API key
	-env        Env file (default .env)
	-debug      Debug logging

# Environment Variables

The env file is loaded first (missing is fine), then flags fall back to:

	PORT            → -p
	DATABASE_URL    → -d
	DATABASE_TYPE   → -t
	RELAY_DATA_DIR  → -data
	RELAY_API_KEY   → -api-key

CLI flags take precedence over environment variables. PostgreSQL requires
an explicit DATABASE_URL.
*/
package cliparse
