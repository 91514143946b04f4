// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package eth implements the ledger ports against a deployed voting contract through go-ethereum.
package eth
