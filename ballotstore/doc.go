// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ballotstore stores ballot documents by content ID.

# Content Addressing

Documents are serialized with Marshal (JSON, fixed field order) and
addressed by a CIDv1 over those bytes (raw codec, sha2-256). The CID
changes if and only if the bytes change, so storing the same document twice
yields the same CID.

	data, _ := ballotstore.Marshal(doc)
	id, _ := ballotstore.ContentID(data)

# Implementations

  - RelayClient: HTTP client for the relay server (POST /pin_vote,
    GET /retrieve/{cid}, DELETE /unpin/{cid}, DELETE /unpin)
  - Memory: in-process store with fault injection for tests

# Errors

	models.ErrNotFound            unknown CID
	models.ErrStorageUnavailable  backend unreachable, 5xx, or timeout
	models.ErrMalformedDocument   bytes are not a valid ballot, or do not
	                              hash to the requested CID

Delete is best effort: tally cleanup logs failures and moves on.
*/
package ballotstore
