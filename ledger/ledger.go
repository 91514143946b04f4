// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/models"
)

// EventKind names a contract event.
type EventKind string

const (
	EventSetupBegun       EventKind = "CommenceSetup"
	EventSessionStarted   EventKind = "SessionStarted"
	EventVoteCast         EventKind = "VoteCasted"
	EventCommitmentCast   EventKind = "CommitmentCasted"
	EventVotingEnded      EventKind = "VotingEnded"
	EventVoterExcluded    EventKind = "VoterExcluded"
	EventVoterReinstated  EventKind = "VoterReinstated"
	EventResultsFinalized EventKind = "ResultsFinalized"
)

// Event is one decoded contract log. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind        EventKind
	SessionID   uint64
	Voter       common.Address // vote, commitment, exclusion events
	Payload     string         // CID or hex commitment
	Topic       string         // SessionStarted
	Options     []string       // SessionStarted
	Counts      []uint64       // ResultsFinalized
	TxHash      common.Hash
	LogIndex    uint
	BlockNumber uint64
	Removed     bool // dropped by a chain reorganisation
}

// Key identifies the log that produced the event. Redelivered events share
// a key.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash.Hex(), e.LogIndex)
}

// LogEntry converts a vote or commitment event to a VoteLogEntry.
func (e Event) LogEntry() models.VoteLogEntry {
	return models.VoteLogEntry{
		Voter:       e.Voter,
		Payload:     e.Payload,
		TxHash:      e.TxHash,
		LogIndex:    e.LogIndex,
		BlockNumber: e.BlockNumber,
	}
}

// Receipt describes a confirmed mutating call.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Events      []Event
}

// Reader is the read side of the voting contract.
type Reader interface {
	// Account is the address mutating calls are sent from.
	Account() common.Address
	Coordinator(ctx context.Context) (common.Address, error)
	Session(ctx context.Context) (models.Session, error)
	HasVoted(ctx context.Context, voter common.Address) (bool, error)
	// Commitment returns the hash voter committed in the current session,
	// or the zero hash.
	Commitment(ctx context.Context, voter common.Address) (common.Hash, error)
	// VoteEvents returns the vote-cast log of a session in ledger order.
	VoteEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error)
	// CommitmentEvents returns the commitment log of a session in ledger
	// order; Payload is the hex commitment.
	CommitmentEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error)
}

// ErrUnconfirmed marks a call that was handed to the ledger but whose
// outcome is unknown. It may still be applied later.
var ErrUnconfirmed = errors.New("transaction unconfirmed")

// UnconfirmedError is returned once a call has been submitted and its
// confirmation could not be observed. It matches ErrUnconfirmed and Err.
type UnconfirmedError struct {
	Op     models.Op
	TxHash common.Hash
	Err    error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("%s: transaction %s unconfirmed: %v", e.Op, e.TxHash.Hex(), e.Err)
}

func (e *UnconfirmedError) Unwrap() []error {
	return []error{ErrUnconfirmed, e.Err}
}

// Writer issues mutating calls. Each call returns once the ledger has
// confirmed it. A refusal wraps models.ErrLedgerRejected; a failure after
// submission is an *UnconfirmedError. Any other error means nothing was
// submitted.
type Writer interface {
	StartSetup(ctx context.Context) (*Receipt, error)
	StartSession(ctx context.Context, topic string, options []string) (*Receipt, error)
	EndVoting(ctx context.Context) (*Receipt, error)
	ExcludeVoter(ctx context.Context, voter common.Address) (*Receipt, error)
	ReinstateVoter(ctx context.Context, voter common.Address) (*Receipt, error)
	CastVote(ctx context.Context, cid string) (*Receipt, error)
	CastCommitment(ctx context.Context, hash common.Hash) (*Receipt, error)
	RevealVotes(ctx context.Context, voters []common.Address, optionIndexes []uint64, salts []string) (*Receipt, error)
	SetFinalResults(ctx context.Context, counts []uint64) (*Receipt, error)
}

// Subscription delivers contract events until Unsubscribe is called or
// an error is sent on Err.
type Subscription interface {
	Events() <-chan Event
	Err() <-chan error
	Unsubscribe()
}

// Subscriber opens event subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Ledger is the whole contract surface.
type Ledger interface {
	Reader
	Writer
	Subscriber
}
