// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/db"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/pinstore"
)

// Well-known test accounts
var (
	Coordinator = common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")
	Alice       = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	Bob         = common.HexToAddress("0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db")
	Carol       = common.HexToAddress("0x78731D3Ca6b7E34aC0F824c42a7cC18A495cabaB")
	Dave        = common.HexToAddress("0x617F2E2fD72FD9D5503197092aC168c91465E7f2")
)

// TestAPIKey is the relay API key used by GetTestConfig.
const TestAPIKey = "test-relay-key"

// SetupTestDB opens a fresh SQLite database in a temp dir with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// SQLite allows one writer at a time
	conn.SetMaxOpenConns(1)

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// SetupTestStore returns a pin store over a fresh database with in-memory blobs
func SetupTestStore(t *testing.T) (*sql.DB, *pinstore.Store) {
	t.Helper()

	conn := SetupTestDB(t)
	store, err := pinstore.Open(conn, "", nil)
	if err != nil {
		t.Fatalf("Failed to open pin store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return conn, store
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3318,
		DatabaseType: db.TypeSQLite,
		APIKey:       TestAPIKey,
	}
}

// TestBallot builds a valid ballot document with a fixed timestamp
func TestBallot(voter common.Address, session uint64, optionIndex int) models.BallotDocument {
	return models.NewBallotDocument(voter, session, optionIndex, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
}

// AuthHeader returns the bearer header for TestAPIKey
func AuthHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + TestAPIKey}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		var raw []byte
		switch b := body.(type) {
		case []byte:
			raw = b
		case string:
			raw = []byte(b)
		default:
			raw, _ = json.Marshal(body)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
