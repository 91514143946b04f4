// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the quickly-vote ballot relay.

quickly-vote runs phased voting sessions (Setup → Voting → Reveal) on a
smart-contract ledger. Ballots are kept off-chain as small JSON documents
addressed by their content ID; only the CID goes on the ledger. This server
is the content-addressed store those CIDs point into. The coordinator and
participant tooling lives in cmd/votectl.

# Starting the Server

With no configuration the relay uses a local SQLite file and keeps blobs in
memory:

	go run .

Or with flags:

	go run . -p 3318 -data ./blobs -api-key "$(openssl rand -hex 32)"

# Configuration

Optional settings (flags, environment, or a .env file):

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - DATABASE_URL (-d): connection string (required for postgres)
  - RELAY_DATA_DIR (-data): badger blob directory
  - RELAY_API_KEY (-api-key): bearer key for write endpoints

# Architecture

  - handlers: HTTP request handlers (pin, retrieve, unpin, list)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, API key, metrics, JSON helpers
  - pinstore: blob storage and the SQL pin index
  - models: shared domain and response types
  - auth: API key handling
  - db: Schema creation
  - cliparse: Configuration parsing

The voting side of the system:

  - commitment, vault: commit-reveal hashing and local secret storage
  - ballotstore: CID codec and the relay client
  - ledger, ledger/memory, ledger/eth: contract access
  - phase, voter, tally, eventsync: session lifecycle, casting, counting,
    and event handling
  - config, cmd/votectl: client configuration and the CLI

See package documentation for each component.
*/
package main
