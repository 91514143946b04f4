// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package ledger defines the contract surface the voting tools depend on:
// reads, confirmed mutating calls, and event subscriptions. Implementations
// live in ledger/memory (in-process) and ledger/eth (deployed contract).
package ledger
