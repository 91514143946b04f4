// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/danielhkuo/quickly-vote/db"
)

// DefaultSQLiteURL is used when no database URL is given for SQLite.
const DefaultSQLiteURL = "quickly-vote-relay.db"

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	DataDir      string
	APIKey       string
	EnvFile      string
	Debug        bool
}

// ParseFlags validates flags and fills the rest from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("quickly-vote-relay", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.DataDir, "data", "", "Blob store directory (empty keeps blobs in memory)")
	fs.StringVar(&cfg.EnvFile, "env", ".env", "Env file loaded before reading the environment")
	fs.BoolVar(&cfg.Debug, "debug", false, "Debug logging")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.APIKey, "api-key", "", "Bearer key for mutating endpoints (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// A missing env file is fine; a broken one is not
	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", cfg.EnvFile, err)
		}
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = db.TypeSQLite
		}
	}
	if _, err := db.DriverName(cfg.DatabaseType); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseType != db.TypeSQLite {
			return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
		}
		cfg.DatabaseURL = DefaultSQLiteURL
	}

	if cfg.DataDir == "" {
		cfg.DataDir = os.Getenv("RELAY_DATA_DIR")
	}

	// Optional: without a key the relay accepts unauthenticated writes
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("RELAY_API_KEY")
	}

	return cfg, nil
}
