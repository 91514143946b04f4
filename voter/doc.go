// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package voter implements the participant side: CID ballots and
// commit-reveal commitments.
package voter
