// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the ballot relay.

# Handler Types

  - PinHandler: store, retrieve, list and remove ballot documents

Handlers are created via constructor functions that accept the pin store
and Config:

	pinHandler := handlers.NewPinHandler(store, cfg)

# Endpoints

	POST   /pin_vote        → PinVote (returns cid, name, size)
	GET    /retrieve/{cid}  → Retrieve (returns the stored document)
	DELETE /unpin/{cid}     → Unpin
	DELETE /unpin           → UnpinAll
	GET    /pins            → ListPins (?session=n)

Documents are validated and canonicalized before storage, so the returned
CID is the one a client computes locally for the same document. Mutating
endpoints require the relay API key when one is configured (see router).

# Status Codes

	400  invalid JSON, malformed ballot document, invalid cid
	404  unknown cid
	500  database or blob store failure
*/
package handlers
