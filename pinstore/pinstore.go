// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package pinstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/kv"
	"github.com/danielhkuo/quickly-vote/models"
)

const blobPrefix = "blob/"

// Store keeps ballot document bytes in a key/value blob store and indexes
// them in SQL.
type Store struct {
	db     *sql.DB
	blobs  kv.Store
	logger *slog.Logger
}

// Open wires a pin store over an already migrated database. dataDir holds
// the badger blob files; "" keeps blobs in memory.
func Open(db *sql.DB, dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	blobs, err := kv.OpenBadger(dataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return New(db, blobs, logger), nil
}

// New builds a Store over an existing blob KV.
func New(db *sql.DB, blobs kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, blobs: blobs, logger: logger.With("component", "pinstore")}
}

// Pin validates doc, stores its canonical bytes and indexes it. Pinning the
// same document twice returns the existing pin.
func (s *Store) Pin(ctx context.Context, doc models.BallotDocument) (models.Pin, error) {
	data, err := ballotstore.Marshal(doc)
	if err != nil {
		return models.Pin{}, err
	}
	id, err := ballotstore.ContentID(data)
	if err != nil {
		return models.Pin{}, err
	}

	if err := s.blobs.Set(blobPrefix+id, data); err != nil {
		return models.Pin{}, fmt.Errorf("failed to store blob: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pin (id, cid, name, size, voter, session, pinned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cid) DO NOTHING
	`, uuid.NewString(), id, doc.PinName(), len(data), doc.Voter, int64(doc.Session), time.Now().UTC())
	if err != nil {
		return models.Pin{}, fmt.Errorf("failed to index pin: %w", err)
	}

	pin, err := s.lookup(ctx, id)
	if err != nil {
		return models.Pin{}, err
	}
	s.logger.Info("document pinned",
		"cid", pin.CID,
		"name", pin.Name,
		"size", humanize.Bytes(uint64(pin.Size)),
	)
	return pin, nil
}

// Get returns the stored bytes for cid, or models.ErrNotFound.
func (s *Store) Get(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(blobPrefix + cid)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, cid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Unpin drops one document. It reports whether anything was removed.
func (s *Store) Unpin(ctx context.Context, cid string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pin WHERE cid = $1`, cid)
	if err != nil {
		return false, fmt.Errorf("failed to delete pin: %w", err)
	}
	n, _ := res.RowsAffected()

	_, getErr := s.blobs.Get(blobPrefix + cid)
	hadBlob := getErr == nil
	if err := s.blobs.Delete(blobPrefix + cid); err != nil {
		return false, fmt.Errorf("failed to delete blob: %w", err)
	}

	removed := n > 0 || hadBlob
	if removed {
		s.logger.Info("document unpinned", "cid", cid)
	}
	return removed, nil
}

// UnpinAll drops every pinned document and returns how many were removed.
func (s *Store) UnpinAll(ctx context.Context) (int, error) {
	pins, err := s.List(ctx, nil)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range pins {
		ok, err := s.Unpin(ctx, p.CID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	s.logger.Info("all documents unpinned", "removed", removed)
	return removed, nil
}

// List returns pins, newest first. A non-nil session restricts the result
// to that session.
func (s *Store) List(ctx context.Context, session *uint64) ([]models.Pin, error) {
	query := `SELECT id, cid, name, size, pinned_at FROM pin`
	var args []any
	if session != nil {
		query += ` WHERE session = $1`
		args = append(args, int64(*session))
	}
	query += ` ORDER BY pinned_at DESC, cid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	defer rows.Close()

	pins := []models.Pin{}
	for rows.Next() {
		var p models.Pin
		if err := rows.Scan(&p.ID, &p.CID, &p.Name, &p.Size, &p.PinnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

// Close releases the blob store. The database belongs to the caller.
func (s *Store) Close() error {
	return s.blobs.Close()
}

func (s *Store) lookup(ctx context.Context, cid string) (models.Pin, error) {
	var p models.Pin
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cid, name, size, pinned_at FROM pin WHERE cid = $1
	`, cid).Scan(&p.ID, &p.CID, &p.Name, &p.Size, &p.PinnedAt)
	if err == sql.ErrNoRows {
		return models.Pin{}, fmt.Errorf("%w: %s", models.ErrNotFound, cid)
	}
	if err != nil {
		return models.Pin{}, fmt.Errorf("failed to read pin: %w", err)
	}
	return p, nil
}
