// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

var (
	ErrAlreadyExcluded = errors.New("voter is already excluded")
	ErrNotExcluded     = errors.New("voter is not excluded")
)

// Controller drives the session lifecycle. It holds no session state of its
// own: every check reads the ledger, and the ledger re-validates every call.
type Controller struct {
	ledger ledger.Ledger
	policy models.Policy
	logger *slog.Logger
}

func NewController(l ledger.Ledger, policy models.Policy, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		ledger: ledger.Serialize(l),
		policy: policy,
		logger: logger.With("component", "phase"),
	}
}

// Session returns the ledger's current session.
func (c *Controller) Session(ctx context.Context) (models.Session, error) {
	return c.ledger.Session(ctx)
}

// IsCoordinator reports whether the connected account is the coordinator.
func (c *Controller) IsCoordinator(ctx context.Context) (bool, error) {
	coordinator, err := c.ledger.Coordinator(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read coordinator: %w", err)
	}
	return coordinator == c.ledger.Account(), nil
}

// precheck fails fast on calls the ledger would refuse.
func (c *Controller) precheck(ctx context.Context, op models.Op) (models.Session, error) {
	if op.CoordinatorOnly() {
		ok, err := c.IsCoordinator(ctx)
		if err != nil {
			return models.Session{}, err
		}
		if !ok {
			return models.Session{}, fmt.Errorf("%w: %s from %s", models.ErrNotCoordinator, op, c.ledger.Account().Hex())
		}
	}
	s, err := c.ledger.Session(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if err := s.Permits(op); err != nil {
		return s, err
	}
	return s, nil
}

// StartSetup opens a new session. The exclusion list is reset or carried
// over according to the ledger's policy; a result that disagrees with the
// configured policy is logged.
func (c *Controller) StartSetup(ctx context.Context) (*ledger.Receipt, error) {
	prev, err := c.precheck(ctx, models.OpStartSetup)
	if err != nil {
		return nil, err
	}
	r, err := c.ledger.StartSetup(ctx)
	if err != nil {
		return nil, err
	}
	next, err := c.ledger.Session(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to re-read session: %w", err)
	}
	want := []common.Address{}
	if c.policy.ExclusionCarryOver {
		want = prev.ExcludedVoters
	}
	if !sameSet(want, next.ExcludedVoters) {
		c.logger.Warn("exclusion list after setup does not match policy",
			"carry_over", c.policy.ExclusionCarryOver,
			"expected", len(want),
			"actual", len(next.ExcludedVoters),
		)
	}
	c.logger.Info("setup begun", "session", next.ID)
	return r, nil
}

func (c *Controller) StartSession(ctx context.Context, topic string, options []string) (*ledger.Receipt, error) {
	topic, options, err := models.NormalizeSessionInput(topic, options)
	if err != nil {
		return nil, err
	}
	if _, err := c.precheck(ctx, models.OpStartSession); err != nil {
		return nil, err
	}
	r, err := c.ledger.StartSession(ctx, topic, options)
	if err != nil {
		return nil, err
	}
	c.logger.Info("session started", "topic", topic, "options", len(options))
	return r, nil
}

func (c *Controller) EndVoting(ctx context.Context) (*ledger.Receipt, error) {
	s, err := c.precheck(ctx, models.OpEndVoting)
	if err != nil {
		return nil, err
	}
	r, err := c.ledger.EndVoting(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("voting ended", "session", s.ID)
	return r, nil
}

func (c *Controller) ExcludeVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	s, err := c.precheck(ctx, models.OpExcludeVoter)
	if err != nil {
		return nil, err
	}
	if s.IsExcluded(voter) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExcluded, voter.Hex())
	}
	r, err := c.ledger.ExcludeVoter(ctx, voter)
	if err != nil {
		return nil, err
	}
	c.logger.Info("voter excluded", "voter", voter.Hex(), "session", s.ID)
	return r, nil
}

func (c *Controller) ReinstateVoter(ctx context.Context, voter common.Address) (*ledger.Receipt, error) {
	s, err := c.precheck(ctx, models.OpReinstateVoter)
	if err != nil {
		return nil, err
	}
	if !s.IsExcluded(voter) {
		return nil, fmt.Errorf("%w: %s", ErrNotExcluded, voter.Hex())
	}
	r, err := c.ledger.ReinstateVoter(ctx, voter)
	if err != nil {
		return nil, err
	}
	c.logger.Info("voter reinstated", "voter", voter.Hex(), "session", s.ID)
	return r, nil
}

// CheckCanVote reports why voter may not cast in the current session, or
// nil when a vote or commitment would be accepted.
func (c *Controller) CheckCanVote(ctx context.Context, voter common.Address) (models.Session, error) {
	s, err := c.ledger.Session(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if err := s.Permits(models.OpCastVote); err != nil {
		return s, err
	}
	voted, err := c.ledger.HasVoted(ctx, voter)
	if err != nil {
		return s, fmt.Errorf("failed to read voter status: %w", err)
	}
	return s, s.CanVote(models.OpCastVote, voter, voted)
}

func sameSet(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	return true
}
