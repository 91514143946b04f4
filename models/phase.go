// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Op names a ledger-mutating operation.
type Op string

const (
	OpStartSetup      Op = "startSetup"
	OpStartSession    Op = "startSession"
	OpEndVoting       Op = "endVoting"
	OpExcludeVoter    Op = "excludeVoter"
	OpReinstateVoter  Op = "reinstateVoter"
	OpCastVote        Op = "castVote"
	OpCastCommitment  Op = "castCommitment"
	OpRevealVotes     Op = "revealVotes"
	OpSetFinalResults Op = "setFinalResults"
)

// CoordinatorOnly reports whether op may only be issued by the coordinator.
func (op Op) CoordinatorOnly() bool {
	switch op {
	case OpCastVote, OpCastCommitment:
		return false
	}
	return true
}

// Permits is the phase rule table. Both the client pre-checks and the
// in-process ledger call it, so they cannot drift apart.
//
// Exclusion edits are confined to Setup.
func (s Session) Permits(op Op) error {
	switch op {
	case OpStartSetup:
		if s.Phase == PhaseReveal || s.Initial() {
			return nil
		}
		return PhaseViolation(op, s.Phase, PhaseReveal)
	case OpStartSession, OpExcludeVoter, OpReinstateVoter:
		if s.Phase == PhaseSetup {
			return nil
		}
		return PhaseViolation(op, s.Phase, PhaseSetup)
	case OpEndVoting, OpCastVote, OpCastCommitment:
		if s.Phase == PhaseVoting {
			return nil
		}
		return PhaseViolation(op, s.Phase, PhaseVoting)
	case OpRevealVotes, OpSetFinalResults:
		if s.Phase != PhaseReveal {
			return PhaseViolation(op, s.Phase, PhaseReveal)
		}
		if s.TallyComplete {
			return fmt.Errorf("%w: session %d", ErrAlreadyFinalized, s.ID)
		}
		return nil
	}
	return fmt.Errorf("unknown operation %q", op)
}

// CanVote applies the phase rule and the voter's eligibility.
func (s Session) CanVote(op Op, voter common.Address, hasVoted bool) error {
	if err := s.Permits(op); err != nil {
		return err
	}
	if s.IsExcluded(voter) {
		return fmt.Errorf("%w: %s", ErrIneligible, voter.Hex())
	}
	if hasVoted {
		return fmt.Errorf("%w: %s in session %d", ErrDuplicateSubmission, voter.Hex(), s.ID)
	}
	return nil
}

// CheckOption verifies idx addresses one of the session's options.
func (s Session) CheckOption(idx int) error {
	if idx < 0 || idx >= len(s.Options) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidOption, idx, len(s.Options))
	}
	return nil
}

// NormalizeSessionInput trims the topic and options and enforces a
// non-empty topic with at least two non-empty options.
func NormalizeSessionInput(topic string, options []string) (string, []string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", nil, fmt.Errorf("%w: topic is empty", ErrInvalidSession)
	}
	out := make([]string, 0, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return "", nil, fmt.Errorf("%w: empty option", ErrInvalidSession)
		}
		out = append(out, o)
	}
	if len(out) < 2 {
		return "", nil, fmt.Errorf("%w: got %d options", ErrInvalidSession, len(out))
	}
	return topic, out, nil
}

// SplitOptions parses a comma separated option list the way the coordinator
// form accepts it.
func SplitOptions(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
