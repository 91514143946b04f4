// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package phase

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/quickly-vote/ledger/memory"
	"github.com/danielhkuo/quickly-vote/models"
)

var (
	coordinator = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice       = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bob         = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func newController(t *testing.T, policy models.Policy) (*memory.Chain, *Controller) {
	t.Helper()
	chain := memory.NewChain(coordinator, policy)
	return chain, NewController(chain.Connect(coordinator), policy, nil)
}

func TestIsCoordinator(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	ok, err := ctrl.IsCoordinator(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewController(chain.Connect(alice), models.Policy{}, nil).IsCoordinator(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNonCoordinatorFailsBeforeSubmission(t *testing.T) {
	ctx := context.Background()
	chain, _ := newController(t, models.Policy{})
	ctrl := NewController(chain.Connect(alice), models.Policy{}, nil)

	_, err := ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
	assert.ErrorIs(t, err, models.ErrNotCoordinator)
	assert.NotErrorIs(t, err, models.ErrLedgerRejected)
	assert.Zero(t, chain.Calls(models.OpStartSession))
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	_, err := ctrl.StartSetup(ctx)
	require.NoError(t, err, "startSetup is legal from the initial state")

	_, err = ctrl.StartSession(ctx, "  Lunch ", []string{" Pizza", "Sushi "})
	require.NoError(t, err)
	s := chain.Snapshot()
	assert.Equal(t, uint64(1), s.ID)
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Equal(t, "Lunch", s.Topic)
	assert.Equal(t, []string{"Pizza", "Sushi"}, s.Options)

	_, err = ctrl.EndVoting(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReveal, chain.Snapshot().Phase)

	_, err = ctrl.StartSetup(ctx)
	require.NoError(t, err)
	s = chain.Snapshot()
	assert.Equal(t, uint64(2), s.ID)
	assert.Equal(t, models.PhaseSetup, s.Phase)
	assert.Empty(t, s.Options)
}

func TestOutOfPhaseFailsBeforeSubmission(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	_, err := ctrl.EndVoting(ctx)
	assert.ErrorIs(t, err, models.ErrPhaseViolation)
	assert.Zero(t, chain.Calls(models.OpEndVoting))

	_, err = ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
	require.NoError(t, err)

	_, err = ctrl.StartSetup(ctx)
	assert.ErrorIs(t, err, models.ErrPhaseViolation)
	_, err = ctrl.StartSession(ctx, "Again", []string{"A", "B"})
	assert.ErrorIs(t, err, models.ErrPhaseViolation)
	_, err = ctrl.ExcludeVoter(ctx, alice)
	assert.ErrorIs(t, err, models.ErrPhaseViolation)

	assert.Zero(t, chain.Calls(models.OpStartSetup))
	assert.Zero(t, chain.Calls(models.OpExcludeVoter))
	assert.Equal(t, 1, chain.Calls(models.OpStartSession))
}

func TestStartSessionValidation(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	_, err := ctrl.StartSession(ctx, "", []string{"A", "B"})
	assert.ErrorIs(t, err, models.ErrInvalidSession)
	_, err = ctrl.StartSession(ctx, "Topic", []string{"A"})
	assert.ErrorIs(t, err, models.ErrInvalidSession)
	_, err = ctrl.StartSession(ctx, "Topic", models.SplitOptions("A, ,B"))
	assert.ErrorIs(t, err, models.ErrInvalidSession)
	assert.Zero(t, chain.Calls(models.OpStartSession))
}

func TestExcludeAndReinstate(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	_, err := ctrl.ExcludeVoter(ctx, alice)
	require.NoError(t, err)
	_, err = ctrl.ExcludeVoter(ctx, alice)
	assert.ErrorIs(t, err, ErrAlreadyExcluded)

	_, err = ctrl.ReinstateVoter(ctx, bob)
	assert.ErrorIs(t, err, ErrNotExcluded)

	_, err = ctrl.ReinstateVoter(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, chain.Snapshot().ExcludedVoters)
}

func TestCheckCanVote(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})

	_, err := ctrl.CheckCanVote(ctx, alice)
	assert.ErrorIs(t, err, models.ErrPhaseViolation, "setup")

	_, err = ctrl.ExcludeVoter(ctx, bob)
	require.NoError(t, err)
	_, err = ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
	require.NoError(t, err)

	_, err = ctrl.CheckCanVote(ctx, alice)
	assert.NoError(t, err)
	_, err = ctrl.CheckCanVote(ctx, bob)
	assert.ErrorIs(t, err, models.ErrIneligible)

	_, err = chain.Connect(alice).CastVote(ctx, "bafkrei")
	require.NoError(t, err)
	_, err = ctrl.CheckCanVote(ctx, alice)
	assert.ErrorIs(t, err, models.ErrDuplicateSubmission)

	_, err = ctrl.EndVoting(ctx)
	require.NoError(t, err)
	_, err = ctrl.CheckCanVote(ctx, common.HexToAddress("0x4000000000000000000000000000000000000004"))
	assert.ErrorIs(t, err, models.ErrPhaseViolation, "reveal")
}

func TestExclusionCarryOverPolicy(t *testing.T) {
	for _, carry := range []bool{false, true} {
		t.Run(map[bool]string{false: "reset", true: "carry"}[carry], func(t *testing.T) {
			ctx := context.Background()
			policy := models.Policy{ExclusionCarryOver: carry}
			chain, ctrl := newController(t, policy)

			_, err := ctrl.ExcludeVoter(ctx, alice)
			require.NoError(t, err)
			_, err = ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
			require.NoError(t, err)
			_, err = ctrl.EndVoting(ctx)
			require.NoError(t, err)
			_, err = ctrl.StartSetup(ctx)
			require.NoError(t, err)

			if carry {
				assert.Equal(t, []common.Address{alice}, chain.Snapshot().ExcludedVoters)
			} else {
				assert.Empty(t, chain.Snapshot().ExcludedVoters)
			}
		})
	}
}

func TestWarnsOnPolicyDivergence(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// ledger resets, client expects carry-over
	chain := memory.NewChain(coordinator, models.Policy{ExclusionCarryOver: false})
	ctrl := NewController(chain.Connect(coordinator), models.Policy{ExclusionCarryOver: true}, logger)

	_, err := ctrl.ExcludeVoter(ctx, alice)
	require.NoError(t, err)
	_, err = ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
	require.NoError(t, err)
	_, err = ctrl.EndVoting(ctx)
	require.NoError(t, err)
	_, err = ctrl.StartSetup(ctx)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "does not match policy")
}

func TestLedgerRejectionIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	chain, ctrl := newController(t, models.Policy{})
	chain.FailNext(models.OpStartSession, models.Rejected(models.OpStartSession, assert.AnError))

	_, err := ctrl.StartSession(ctx, "Lunch", []string{"Pizza", "Sushi"})
	assert.ErrorIs(t, err, models.ErrLedgerRejected)
	assert.Equal(t, models.PhaseSetup, chain.Snapshot().Phase)
}
