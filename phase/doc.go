// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package phase gates the session lifecycle.

	Setup ──startSession──▶ Voting ──endVoting──▶ Reveal ──startSetup──▶ Setup (id+1)

All transitions are coordinator-only. The Controller rejects an out-of-phase
or non-coordinator call before anything is sent, using the same rule table
(models.Session.Permits) the in-process ledger enforces. The ledger stays
authoritative: its refusals come back wrapped in models.ErrLedgerRejected.

Exclusion edits are only legal in Setup. Whether a new Setup keeps the
previous exclusion list is models.Policy.ExclusionCarryOver; the controller
warns when the ledger's behaviour disagrees with the configured policy.
*/
package phase
