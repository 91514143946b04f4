// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package pinstore is the relay's storage engine.

Each ballot document is canonicalized (ballotstore.Marshal), addressed by
its CIDv1 and written twice: the bytes go to a badger blob store under
"blob/<cid>" and a row goes to the SQL pin table with the pin name
("vote-<voter>-session-<n>"), size, voter and session.

	store, err := pinstore.Open(conn, cfg.DataDir, logger)
	pin, err := store.Pin(ctx, doc)
	data, err := store.Get(ctx, pin.CID)
	removed, err := store.Unpin(ctx, pin.CID)

Pinning is idempotent: the cid column is unique and inserts use
ON CONFLICT DO NOTHING, so re-pinning returns the original row.
*/
package pinstore
