// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ballotstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/danielhkuo/quickly-vote/models"
)

// Store is content-addressed storage for ballot documents.
//
// Get fails with models.ErrNotFound for an unknown CID and
// models.ErrStorageUnavailable when the backend cannot be reached. Delete
// is best effort; callers log its failures and carry on.
type Store interface {
	Put(ctx context.Context, doc models.BallotDocument) (string, error)
	Get(ctx context.Context, id string) (models.BallotDocument, error)
	Delete(ctx context.Context, id string) error
}

var prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// Marshal returns the canonical bytes of doc. Struct field order is fixed,
// so equal documents always produce equal bytes and therefore equal CIDs.
func Marshal(doc models.BallotDocument) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Unmarshal decodes and validates a stored document. Anything that is not
// exactly a ballot document is models.ErrMalformedDocument.
func Unmarshal(data []byte) (models.BallotDocument, error) {
	var doc models.BallotDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return models.BallotDocument{}, fmt.Errorf("%w: %w", models.ErrMalformedDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return models.BallotDocument{}, err
	}
	return doc, nil
}

// ContentID derives the CIDv1 (raw codec, sha2-256) of data.
func ContentID(data []byte) (string, error) {
	c, err := prefix.Sum(data)
	if err != nil {
		return "", fmt.Errorf("failed to compute cid: %w", err)
	}
	return c.String(), nil
}

// ParseCID validates s and returns its canonical string form.
func ParseCID(s string) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid cid %q: %w", s, err)
	}
	return c.String(), nil
}

// DocumentCID is ContentID(Marshal(doc)).
func DocumentCID(doc models.BallotDocument) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	return ContentID(data)
}

// verify checks that doc is the document addressed by id.
func verify(id string, doc models.BallotDocument) error {
	got, err := DocumentCID(doc)
	if err != nil {
		return err
	}
	if got != id {
		return fmt.Errorf("%w: content hashes to %s, requested %s", models.ErrMalformedDocument, got, id)
	}
	return nil
}
