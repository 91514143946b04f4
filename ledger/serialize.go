// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Serialize wraps l so that at most one mutating call is in flight at a
// time. Waiting for the slot honours ctx. Reads and subscriptions pass
// straight through.
func Serialize(l Ledger) Ledger {
	if s, ok := l.(*serialized); ok {
		return s
	}
	return &serialized{Ledger: l, slot: make(chan struct{}, 1)}
}

type serialized struct {
	Ledger
	slot chan struct{}
}

func (s *serialized) do(ctx context.Context, call func() (*Receipt, error)) (*Receipt, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slot }()
	return call()
}

func (s *serialized) StartSetup(ctx context.Context) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.StartSetup(ctx) })
}

func (s *serialized) StartSession(ctx context.Context, topic string, options []string) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.StartSession(ctx, topic, options) })
}

func (s *serialized) EndVoting(ctx context.Context) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.EndVoting(ctx) })
}

func (s *serialized) ExcludeVoter(ctx context.Context, voter common.Address) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.ExcludeVoter(ctx, voter) })
}

func (s *serialized) ReinstateVoter(ctx context.Context, voter common.Address) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.ReinstateVoter(ctx, voter) })
}

func (s *serialized) CastVote(ctx context.Context, cid string) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.CastVote(ctx, cid) })
}

func (s *serialized) CastCommitment(ctx context.Context, hash common.Hash) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.CastCommitment(ctx, hash) })
}

func (s *serialized) RevealVotes(ctx context.Context, voters []common.Address, optionIndexes []uint64, salts []string) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.RevealVotes(ctx, voters, optionIndexes, salts) })
}

func (s *serialized) SetFinalResults(ctx context.Context, counts []uint64) (*Receipt, error) {
	return s.do(ctx, func() (*Receipt, error) { return s.Ledger.SetFinalResults(ctx, counts) })
}
