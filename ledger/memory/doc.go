// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package memory is an in-process voting contract.

A Chain holds the contract state and enforces its rules: coordinator-only
calls, the shared phase table (models.Session.Permits), exclusion and
one-vote-per-session checks, commitment verification on reveal, and
one-shot finalization. Every accepted call gets a transaction hash and a
block number, and emits the same events the deployed contract does.

	chain := memory.NewChain(coordinator, models.Policy{})
	admin := chain.Connect(coordinator)
	alice := chain.Connect(aliceAddr)

Faults can be injected per operation: FailNext rejects a call before it is
applied, LoseReceipt applies it but reports ErrReceiptLost to the caller,
HoldNext leaves it pending until MineHeld (the caller sees
ErrReceiptPending), DropSubscriptions ends every subscription with an error, and Redeliver
replays events to subscribers.
*/
package memory
