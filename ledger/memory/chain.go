// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/danielhkuo/quickly-vote/commitment"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

var (
	// ErrReceiptLost is returned when a call was applied but its
	// confirmation never reached the caller.
	ErrReceiptLost = errors.New("transaction receipt lost")
	// ErrReceiptPending is returned for a held call that has not been
	// mined yet.
	ErrReceiptPending = errors.New("transaction still pending")
)

const subscriptionBuffer = 256

// Chain is an in-process voting contract. It enforces the same rules as
// the deployed contract and is shared by every Client connected to it.
type Chain struct {
	mu          sync.Mutex
	policy      models.Policy
	coordinator common.Address
	session     models.Session
	voted       map[common.Address]bool
	cids        map[common.Address]string
	commitments map[common.Address]common.Hash
	logs        []ledger.Event
	block       uint64
	txCount     uint64

	failNext    map[models.Op]error
	loseReceipt map[models.Op]bool
	hold        map[models.Op]bool
	held        []heldCall
	calls       map[models.Op]int

	subs    map[int]*subscription
	nextSub int
}

// NewChain deploys a fresh contract owned by coordinator.
func NewChain(coordinator common.Address, policy models.Policy) *Chain {
	return &Chain{
		policy:      policy,
		coordinator: coordinator,
		session:     models.Session{Phase: models.PhaseSetup},
		voted:       make(map[common.Address]bool),
		cids:        make(map[common.Address]string),
		commitments: make(map[common.Address]common.Hash),
		failNext:    make(map[models.Op]error),
		loseReceipt: make(map[models.Op]bool),
		hold:        make(map[models.Op]bool),
		calls:       make(map[models.Op]int),
		subs:        make(map[int]*subscription),
	}
}

// Connect returns a client that sends calls from account.
func (c *Chain) Connect(account common.Address) *Client {
	return &Client{chain: c, account: account}
}

// FailNext makes the next call of op fail with err without being applied.
func (c *Chain) FailNext(op models.Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext[op] = err
}

// LoseReceipt makes the next call of op succeed on the chain while the
// caller gets ErrReceiptLost.
func (c *Chain) LoseReceipt(op models.Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loseReceipt[op] = true
}

// HoldNext makes the next call of op stay pending: the caller gets an
// unconfirmed error and the call is applied only by MineHeld.
func (c *Chain) HoldNext(op models.Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold[op] = true
}

// MineHeld applies every pending call in submission order. Calls that
// revert are dropped; their errors are joined.
func (c *Chain) MineHeld() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, h := range c.held {
		if _, err := c.commit(h.from, h.op, h.hash, h.mutate); err != nil {
			errs = append(errs, err)
		}
	}
	c.held = nil
	return errors.Join(errs...)
}

// Calls returns how many times op reached the chain, including rejected
// attempts.
func (c *Chain) Calls(op models.Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// BlockNumber returns the number of the last block.
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

// Snapshot returns a copy of the current session.
func (c *Chain) Snapshot() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// Logs returns every event emitted so far.
func (c *Chain) Logs() []ledger.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.logs)
}

// DropSubscriptions ends every open subscription with err, as a lost
// websocket would.
func (c *Chain) DropSubscriptions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.subs {
		s.fail(err)
		delete(c.subs, id)
	}
}

// Redeliver sends already emitted events to every subscriber again.
func (c *Chain) Redeliver(events ...ledger.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcast(events)
}

// apply runs one mutating call under the chain lock. mutate returns the
// events to emit, or an error that reverts the call.
func (c *Chain) apply(ctx context.Context, from common.Address, op models.Op, mutate func(s *models.Session) ([]ledger.Event, error)) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++
	if err, ok := c.failNext[op]; ok {
		delete(c.failNext, op)
		return nil, err
	}

	c.txCount++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.txCount)
	hash := crypto.Keccak256Hash([]byte("memory-tx"), nonce[:])

	if c.hold[op] {
		delete(c.hold, op)
		c.held = append(c.held, heldCall{from: from, op: op, hash: hash, mutate: mutate})
		return nil, &ledger.UnconfirmedError{Op: op, TxHash: hash, Err: ErrReceiptPending}
	}
	receipt, err := c.commit(from, op, hash, mutate)
	if err != nil {
		return nil, err
	}
	if c.loseReceipt[op] {
		delete(c.loseReceipt, op)
		return nil, &ledger.UnconfirmedError{Op: op, TxHash: hash, Err: ErrReceiptLost}
	}
	return receipt, nil
}

type heldCall struct {
	from   common.Address
	op     models.Op
	hash   common.Hash
	mutate func(s *models.Session) ([]ledger.Event, error)
}

// commit checks and applies one call. The caller holds c.mu.
func (c *Chain) commit(from common.Address, op models.Op, hash common.Hash, mutate func(s *models.Session) ([]ledger.Event, error)) (*ledger.Receipt, error) {
	if op.CoordinatorOnly() && from != c.coordinator {
		return nil, models.Rejected(op, models.ErrNotCoordinator)
	}
	if err := c.session.Permits(op); err != nil {
		return nil, models.Rejected(op, err)
	}

	next := copySession(c.session)
	events, err := mutate(&next)
	if err != nil {
		return nil, models.Rejected(op, err)
	}
	c.session = next

	c.block++
	receipt := &ledger.Receipt{TxHash: hash, BlockNumber: c.block}
	for i := range events {
		events[i].TxHash = receipt.TxHash
		events[i].BlockNumber = c.block
		events[i].LogIndex = uint(len(c.logs))
		c.logs = append(c.logs, events[i])
	}
	receipt.Events = events
	c.broadcast(events)
	return receipt, nil
}

func (c *Chain) startSetup(s *models.Session) ([]ledger.Event, error) {
	excluded := s.ExcludedVoters
	*s = models.Session{ID: s.ID + 1, Phase: models.PhaseSetup}
	if c.policy.ExclusionCarryOver {
		s.ExcludedVoters = excluded
	}
	clear(c.voted)
	clear(c.cids)
	clear(c.commitments)
	return []ledger.Event{{Kind: ledger.EventSetupBegun, SessionID: s.ID}}, nil
}

func (c *Chain) startSession(s *models.Session, topic string, options []string) ([]ledger.Event, error) {
	topic, options, err := models.NormalizeSessionInput(topic, options)
	if err != nil {
		return nil, err
	}
	s.Topic, s.Options, s.Phase = topic, options, models.PhaseVoting
	return []ledger.Event{{
		Kind:      ledger.EventSessionStarted,
		SessionID: s.ID,
		Topic:     topic,
		Options:   slices.Clone(options),
	}}, nil
}

func (c *Chain) endVoting(s *models.Session) ([]ledger.Event, error) {
	s.Phase = models.PhaseReveal
	return []ledger.Event{{Kind: ledger.EventVotingEnded, SessionID: s.ID}}, nil
}

func (c *Chain) exclude(s *models.Session, voter common.Address) ([]ledger.Event, error) {
	if s.IsExcluded(voter) {
		return nil, fmt.Errorf("%s is already excluded", voter.Hex())
	}
	s.ExcludedVoters = append(s.ExcludedVoters, voter)
	return []ledger.Event{{Kind: ledger.EventVoterExcluded, SessionID: s.ID, Voter: voter}}, nil
}

func (c *Chain) reinstate(s *models.Session, voter common.Address) ([]ledger.Event, error) {
	i := slices.Index(s.ExcludedVoters, voter)
	if i < 0 {
		return nil, fmt.Errorf("%s is not excluded", voter.Hex())
	}
	s.ExcludedVoters = slices.Delete(s.ExcludedVoters, i, i+1)
	return []ledger.Event{{Kind: ledger.EventVoterReinstated, SessionID: s.ID, Voter: voter}}, nil
}

func (c *Chain) checkVoter(s *models.Session, op models.Op, voter common.Address) error {
	return s.CanVote(op, voter, c.voted[voter])
}

func (c *Chain) castVote(s *models.Session, voter common.Address, cid string) ([]ledger.Event, error) {
	if err := c.checkVoter(s, models.OpCastVote, voter); err != nil {
		return nil, err
	}
	if cid == "" {
		return nil, errors.New("empty cid")
	}
	c.voted[voter] = true
	c.cids[voter] = cid
	return []ledger.Event{{Kind: ledger.EventVoteCast, SessionID: s.ID, Voter: voter, Payload: cid}}, nil
}

func (c *Chain) castCommitment(s *models.Session, voter common.Address, hash common.Hash) ([]ledger.Event, error) {
	if err := c.checkVoter(s, models.OpCastCommitment, voter); err != nil {
		return nil, err
	}
	if hash == (common.Hash{}) {
		return nil, errors.New("empty commitment")
	}
	c.voted[voter] = true
	c.commitments[voter] = hash
	return []ledger.Event{{Kind: ledger.EventCommitmentCast, SessionID: s.ID, Voter: voter, Payload: hash.Hex()}}, nil
}

func (c *Chain) revealVotes(s *models.Session, voters []common.Address, indexes []uint64, salts []string) ([]ledger.Event, error) {
	if len(voters) != len(indexes) || len(voters) != len(salts) {
		return nil, fmt.Errorf("length mismatch: %d voters, %d indexes, %d salts", len(voters), len(indexes), len(salts))
	}
	counts := make([]uint64, len(s.Options))
	seen := make(map[common.Address]bool, len(voters))
	for i, voter := range voters {
		if seen[voter] {
			return nil, fmt.Errorf("%w: %s revealed twice", models.ErrDuplicateSubmission, voter.Hex())
		}
		seen[voter] = true
		stored, ok := c.commitments[voter]
		if !ok {
			return nil, fmt.Errorf("no commitment from %s", voter.Hex())
		}
		if indexes[i] >= uint64(len(s.Options)) {
			return nil, fmt.Errorf("%w: %d", models.ErrInvalidOption, indexes[i])
		}
		if err := commitment.Verify(int(indexes[i]), salts[i], stored); err != nil {
			return nil, fmt.Errorf("%s: %w", voter.Hex(), err)
		}
		counts[indexes[i]]++
	}
	return c.finalize(s, counts)
}

func (c *Chain) setFinalResults(s *models.Session, counts []uint64) ([]ledger.Event, error) {
	if len(counts) != len(s.Options) {
		return nil, fmt.Errorf("got %d counts for %d options", len(counts), len(s.Options))
	}
	return c.finalize(s, slices.Clone(counts))
}

func (c *Chain) finalize(s *models.Session, counts []uint64) ([]ledger.Event, error) {
	s.Results = counts
	s.TallyComplete = true
	return []ledger.Event{{Kind: ledger.EventResultsFinalized, SessionID: s.ID, Counts: slices.Clone(counts)}}, nil
}

func (c *Chain) subscribe() *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	s := &subscription{
		chain:  c,
		id:     c.nextSub,
		events: make(chan ledger.Event, subscriptionBuffer),
		errs:   make(chan error, 1),
	}
	c.subs[s.id] = s
	return s
}

// broadcast must be called with c.mu held.
func (c *Chain) broadcast(events []ledger.Event) {
subs:
	for id, s := range c.subs {
		for _, e := range events {
			select {
			case s.events <- e:
			default:
				s.fail(errors.New("subscriber too slow, events dropped"))
				delete(c.subs, id)
				continue subs
			}
		}
	}
}

func (c *Chain) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

func copySession(s models.Session) models.Session {
	s.Options = slices.Clone(s.Options)
	s.ExcludedVoters = slices.Clone(s.ExcludedVoters)
	s.Results = slices.Clone(s.Results)
	return s
}
