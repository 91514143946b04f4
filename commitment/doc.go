// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package commitment blinds a voter's choice during the Voting phase.

A commitment is keccak256(abi.encode(uint256 optionIndex, string salt)).
The ABI encoding is unambiguous (fixed-width integer, length-prefixed
string), so two different pairs only collide if Keccak-256 does.

	salt, err := commitment.GenerateSalt()
	hash, err := commitment.Compute(optionIndex, salt)
	// ... castCommitment(hash), keep (optionIndex, salt) in the vault ...
	err = commitment.Verify(optionIndex, salt, hash) // at reveal

The salt generated for a vote attempt must be the one revealed; never
regenerate it between commit and reveal.
*/
package commitment
