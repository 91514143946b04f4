// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the domain types shared by the voting client and the
ballot relay, the phase rule table, and the error taxonomy.

# Domain Types

  - Session: the active session as read from the ledger
  - BallotDocument: one voter's choice, stored off-chain by CID
  - SecretRecord: option index and salt kept locally until reveal
  - VoteLogEntry: a vote-cast event read back from the ledger
  - Policy: lifecycle settings that client and ledger must share

# Phases

Sessions move Setup → Voting → Reveal → (next session) Setup:

	startSetup      Reveal (or never started) → Setup, new session id
	startSession    Setup  → Voting
	endVoting       Voting → Reveal

Session.Permits(op) is the single rule table; it returns an
ErrPhaseViolation naming the phase the operation needs. Exclusion edits
are allowed only during Setup.

# Relay Types

  - PinResponse: cid, name, size, message
  - RetrieveResponse: data, message
  - UnpinResponse: removed, message
  - ListPinsResponse: pins, count
  - ErrorResponse: error, message

# Errors

Sentinel errors are wrapped with %w and tested with errors.Is:

	ErrPhaseViolation       out-of-phase call
	ErrIneligible           voter is excluded
	ErrDuplicateSubmission  voter already voted
	ErrStorageUnavailable   ballot store unreachable
	ErrNotFound             unknown CID
	ErrCommitmentMismatch   reveal does not hash to the commitment
	ErrMalformedDocument    unparsable or out-of-range ballot
	ErrLedgerRejected       the ledger refused the call
	ErrAlreadyFinalized     results were already set
*/
package models
