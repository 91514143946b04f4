package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase constants
type Phase string

const (
	PhaseSetup  Phase = "Setup"
	PhaseVoting Phase = "Voting"
	PhaseReveal Phase = "Reveal"
)

// ParsePhase converts the ledger's phase string. An empty value is what a
// freshly deployed contract reports and means Setup.
func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.TrimSpace(s)) {
	case "", PhaseSetup:
		return PhaseSetup, nil
	case PhaseVoting:
		return PhaseVoting, nil
	case PhaseReveal:
		return PhaseReveal, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// Policy holds the configurable parts of the session lifecycle. It must be
// the same on the client and on the ledger.
type Policy struct {
	// ExclusionCarryOver keeps the previous session's excluded voters when
	// a new Setup phase begins. When false the set is reset.
	ExclusionCarryOver bool `json:"exclusion_carry_over" yaml:"exclusionCarryOver"`
}

// Domain types

type Session struct {
	ID             uint64           `json:"id"`
	Topic          string           `json:"topic"`
	Options        []string         `json:"options"`
	Phase          Phase            `json:"phase"`
	ExcludedVoters []common.Address `json:"excluded_voters"`
	TallyComplete  bool             `json:"tally_complete"`
	Results        []uint64         `json:"results,omitempty"` // only meaningful once TallyComplete
}

// IsExcluded reports whether voter is on the session's exclusion list.
func (s Session) IsExcluded(voter common.Address) bool {
	for _, v := range s.ExcludedVoters {
		if v == voter {
			return true
		}
	}
	return false
}

// Initial reports whether no session has ever been started on the ledger.
func (s Session) Initial() bool {
	return s.ID == 0 && s.Phase == PhaseSetup && s.Topic == "" && len(s.Options) == 0
}

// Equal compares two snapshots field by field.
func (s Session) Equal(o Session) bool {
	if s.ID != o.ID || s.Topic != o.Topic || s.Phase != o.Phase || s.TallyComplete != o.TallyComplete {
		return false
	}
	if len(s.Options) != len(o.Options) || len(s.ExcludedVoters) != len(o.ExcludedVoters) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Options {
		if s.Options[i] != o.Options[i] {
			return false
		}
	}
	for i := range s.ExcludedVoters {
		if s.ExcludedVoters[i] != o.ExcludedVoters[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// BallotDocument is the off-chain record of one vote. The ledger only sees
// its content ID.
type BallotDocument struct {
	Voter       string `json:"voter"` // lower-cased hex address
	Session     uint64 `json:"session"`
	OptionIndex int    `json:"optionIndex"`
	Timestamp   string `json:"timestamp"` // RFC 3339, UTC
}

// NewBallotDocument builds a document for voter in session, stamped with now.
func NewBallotDocument(voter common.Address, session uint64, optionIndex int, now time.Time) BallotDocument {
	return BallotDocument{
		Voter:       strings.ToLower(voter.Hex()),
		Session:     session,
		OptionIndex: optionIndex,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
	}
}

// Validate checks the structural rules every stored ballot must satisfy.
// Option range checks need the session and happen at tally time.
func (d BallotDocument) Validate() error {
	if !common.IsHexAddress(d.Voter) {
		return fmt.Errorf("%w: invalid voter address %q", ErrMalformedDocument, d.Voter)
	}
	if d.OptionIndex < 0 {
		return fmt.Errorf("%w: negative option index %d", ErrMalformedDocument, d.OptionIndex)
	}
	if _, err := time.Parse(time.RFC3339Nano, d.Timestamp); err != nil {
		return fmt.Errorf("%w: invalid timestamp %q", ErrMalformedDocument, d.Timestamp)
	}
	return nil
}

// PinName is the human readable name the relay stores alongside the document.
func (d BallotDocument) PinName() string {
	return fmt.Sprintf("vote-%s-session-%d", strings.ToLower(d.Voter), d.Session)
}

// SecretRecord is the hidden half of a commitment, kept on the voter's
// machine until reveal.
type SecretRecord struct {
	OptionIndex int    `json:"optionIndex"`
	Salt        string `json:"salt"`
}

// VoteLogEntry is one vote-cast event read back from the ledger. Payload is
// a CID or a hex commitment hash depending on the protocol variant.
type VoteLogEntry struct {
	Voter       common.Address `json:"voter"`
	Payload     string         `json:"payload"`
	TxHash      common.Hash    `json:"tx_hash"`
	LogIndex    uint           `json:"log_index"`
	BlockNumber uint64         `json:"block_number"`
}

// DedupByVoter keeps the first entry per voter, preserving ledger order.
func DedupByVoter(entries []VoteLogEntry) []VoteLogEntry {
	seen := make(map[common.Address]bool, len(entries))
	out := make([]VoteLogEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Voter] {
			continue
		}
		seen[e.Voter] = true
		out = append(out, e)
	}
	return out
}

// Relay request/response types

type PinResponse struct {
	CID     string `json:"cid"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Message string `json:"message"`
}

type RetrieveResponse struct {
	Data    json.RawMessage `json:"data"` // stored bytes, unmodified
	Message string          `json:"message"`
}

type UnpinResponse struct {
	Removed int    `json:"removed"`
	Message string `json:"message"`
}

type Pin struct {
	ID       string    `json:"id"`
	CID      string    `json:"cid"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	PinnedAt time.Time `json:"pinned_at"`
}

type ListPinsResponse struct {
	Pins  []Pin `json:"pins"`
	Count int   `json:"count"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
