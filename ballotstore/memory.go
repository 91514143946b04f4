// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballotstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/danielhkuo/quickly-vote/models"
)

// Memory is an in-process content-addressed Store. Faults can be injected
// per CID or for the whole store.
type Memory struct {
	mu          sync.RWMutex
	blobs       map[string][]byte
	unavailable map[string]bool
	down        bool
	gets        int
}

func NewMemory() *Memory {
	return &Memory{
		blobs:       make(map[string][]byte),
		unavailable: make(map[string]bool),
	}
}

func (m *Memory) Put(ctx context.Context, doc models.BallotDocument) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	return m.PutRaw(ctx, data)
}

// PutRaw stores arbitrary bytes, for exercising malformed documents.
func (m *Memory) PutRaw(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", fmt.Errorf("%w: store is down", models.ErrStorageUnavailable)
	}
	m.blobs[id] = append([]byte(nil), data...)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.BallotDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.BallotDocument{}, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	m.mu.Lock()
	m.gets++
	down, unavailable := m.down, m.unavailable[id]
	data, ok := m.blobs[id]
	m.mu.Unlock()

	if down || unavailable {
		return models.BallotDocument{}, fmt.Errorf("%w: %s", models.ErrStorageUnavailable, id)
	}
	if !ok {
		return models.BallotDocument{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return Unmarshal(data)
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%w: store is down", models.ErrStorageUnavailable)
	}
	delete(m.blobs, id)
	return nil
}

// SetUnavailable makes Get for id fail with ErrStorageUnavailable.
func (m *Memory) SetUnavailable(id string, unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable[id] = unavailable
}

// SetDown makes every call fail with ErrStorageUnavailable.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// Has reports whether id is stored.
func (m *Memory) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[id]
	return ok
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Gets returns how many Get calls were made.
func (m *Memory) Gets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets
}
