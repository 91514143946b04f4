// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPhaseViolation      = errors.New("operation not allowed in current phase")
	ErrIneligible          = errors.New("voter is excluded from this session")
	ErrDuplicateSubmission = errors.New("voter has already submitted for this session")
	ErrStorageUnavailable  = errors.New("ballot storage unavailable")
	ErrNotFound            = errors.New("ballot document not found")
	ErrCommitmentMismatch  = errors.New("revealed vote does not match commitment")
	ErrMalformedDocument   = errors.New("malformed ballot document")
	ErrLedgerRejected      = errors.New("ledger rejected the call")
	ErrAlreadyFinalized    = errors.New("results already finalized")
	ErrNotCoordinator      = errors.New("caller is not the coordinator")
	ErrInvalidSession      = errors.New("session needs a topic and at least two options")
	ErrSecretMissing       = errors.New("no stored secret for voter")
	ErrInvalidOption       = errors.New("option index out of range")
)

// PhaseViolation builds an ErrPhaseViolation naming the operation and the
// phases it needs.
func PhaseViolation(op Op, have Phase, want ...Phase) error {
	names := make([]string, len(want))
	for i, p := range want {
		names[i] = string(p)
	}
	return fmt.Errorf("%w: %s requires %s, current phase is %s",
		ErrPhaseViolation, op, strings.Join(names, " or "), have)
}

// Rejected wraps a ledger refusal. Reason is whatever the ledger reported.
func Rejected(op Op, reason error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerRejected, op, reason)
}
