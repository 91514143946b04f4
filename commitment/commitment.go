// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package commitment

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/danielhkuo/quickly-vote/models"
)

// SaltBytes is the number of random bytes in a salt before hex encoding.
const SaltBytes = 32

var (
	ErrEmptySalt     = errors.New("salt must not be empty")
	ErrNegativeIndex = errors.New("option index must not be negative")
)

// encoding is abi.encode(uint256, string): a fixed-width word for the index,
// then an offset and a length-prefixed, padded string.
var encoding = func() abi.Arguments {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: uint256Type}, {Type: stringType}}
}()

// GenerateSalt returns SaltBytes of CSPRNG output, hex encoded.
// Call it once per vote attempt and keep the result for the reveal.
func GenerateSalt() (string, error) {
	b := make([]byte, SaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Encode returns the canonical byte encoding of (optionIndex, salt).
func Encode(optionIndex int, salt string) ([]byte, error) {
	if optionIndex < 0 {
		return nil, ErrNegativeIndex
	}
	if salt == "" {
		return nil, ErrEmptySalt
	}
	return encoding.Pack(big.NewInt(int64(optionIndex)), salt)
}

// Compute returns keccak256(Encode(optionIndex, salt)). It matches
// keccak256(abi.encode(optionIndex, salt)) in Solidity.
func Compute(optionIndex int, salt string) (common.Hash, error) {
	enc, err := Encode(optionIndex, salt)
	if err != nil {
		return common.Hash{}, err
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(enc)
	return common.BytesToHash(d.Sum(nil)), nil
}

// Verify recomputes the commitment for a revealed pair and compares it with
// the recorded hash. A mismatch wraps models.ErrCommitmentMismatch.
func Verify(optionIndex int, salt string, recorded common.Hash) error {
	got, err := Compute(optionIndex, salt)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrCommitmentMismatch, err)
	}
	if subtle.ConstantTimeCompare(got[:], recorded[:]) != 1 {
		return fmt.Errorf("%w: got %s, recorded %s", models.ErrCommitmentMismatch, got.Hex(), recorded.Hex())
	}
	return nil
}
