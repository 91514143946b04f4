// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

// Client is one account's connection to a Chain.
type Client struct {
	chain   *Chain
	account common.Address
}

var _ ledger.Ledger = (*Client)(nil)

func (c *Client) Account() common.Address { return c.account }

func (c *Client) Coordinator(ctx context.Context) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	c.chain.mu.Lock()
	defer c.chain.mu.Unlock()
	return c.chain.coordinator, nil
}

func (c *Client) Session(ctx context.Context) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	return c.chain.Snapshot(), nil
}

func (c *Client) HasVoted(ctx context.Context, voter common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.chain.mu.Lock()
	defer c.chain.mu.Unlock()
	return c.chain.voted[voter], nil
}

func (c *Client) Commitment(ctx context.Context, voter common.Address) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	c.chain.mu.Lock()
	defer c.chain.mu.Unlock()
	return c.chain.commitments[voter], nil
}

func (c *Client) VoteEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error) {
	return c.entries(ctx, ledger.EventVoteCast, sessionID)
}

func (c *Client) CommitmentEvents(ctx context.Context, sessionID uint64) ([]models.VoteLogEntry, error) {
	return c.entries(ctx, ledger.EventCommitmentCast, sessionID)
}

func (c *Client) entries(ctx context.Context, kind ledger.EventKind, sessionID uint64) ([]models.VoteLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.VoteLogEntry
	for _, e := range c.chain.Logs() {
		if e.Kind == kind && e.SessionID == sessionID {
			out = append(out, e.LogEntry())
		}
	}
	return out, nil
}

func (c *Client) StartSetup(ctx context.Context) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpStartSetup, c.chain.startSetup)
}

func (c *Client) StartSession(ctx context.Context, topic string, options []string) (*ledger.Receipt, error) {
	options = slices.Clone(options)
	return c.chain.apply(ctx, c.account, models.OpStartSession, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.startSession(s, topic, options)
	})
}

func (c *Client) EndVoting(ctx context.Context) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpEndVoting, c.chain.endVoting)
}

func (c *Client) ExcludeVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpExcludeVoter, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.exclude(s, voter)
	})
}

func (c *Client) ReinstateVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpReinstateVoter, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.reinstate(s, voter)
	})
}

func (c *Client) CastVote(ctx context.Context, cid string) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpCastVote, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.castVote(s, c.account, cid)
	})
}

func (c *Client) CastCommitment(ctx context.Context, hash common.Hash) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpCastCommitment, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.castCommitment(s, c.account, hash)
	})
}

func (c *Client) RevealVotes(ctx context.Context, voters []common.Address, optionIndexes []uint64, salts []string) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpRevealVotes, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.revealVotes(s, voters, optionIndexes, salts)
	})
}

func (c *Client) SetFinalResults(ctx context.Context, counts []uint64) (*ledger.Receipt, error) {
	return c.chain.apply(ctx, c.account, models.OpSetFinalResults, func(s *models.Session) ([]ledger.Event, error) {
		return c.chain.setFinalResults(s, counts)
	})
}

func (c *Client) Subscribe(ctx context.Context) (ledger.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.chain.subscribe(), nil
}

type subscription struct {
	chain     *Chain
	id        int
	events    chan ledger.Event
	errs      chan error
	failOnce  sync.Once
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan ledger.Event { return s.events }

func (s *subscription) Err() <-chan error { return s.errs }

// Unsubscribe stops delivery and closes the error channel.
func (s *subscription) Unsubscribe() {
	s.chain.unsubscribe(s.id)
	s.closeOnce.Do(func() { close(s.errs) })
}

// fail is called by the chain, with its lock held, before it forgets s.
func (s *subscription) fail(err error) {
	s.failOnce.Do(func() { s.errs <- err })
}
