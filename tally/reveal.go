// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/commitment"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
)

var ErrNoVault = errors.New("reveal needs a secret vault")

// Reveal runs the commit-reveal batch for the current session. Voters come
// from the ledger's commitment log; the vault only supplies secrets. Each
// secret is checked against the recorded commitment before submission so
// one bad entry cannot revert the whole batch. Revealed secrets are
// cleared afterwards.
func (e *Engine) Reveal(ctx context.Context) (*Report, error) {
	if e.vault == nil {
		return nil, ErrNoVault
	}
	s, done, err := e.start(ctx, models.OpRevealVotes)
	if err != nil || done != nil {
		return done, err
	}

	log, err := e.ledger.CommitmentEvents(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read commitment events: %w", err)
	}
	entries := models.DedupByVoter(log)

	report := &Report{Session: s.ID}
	var (
		voters  []common.Address
		indexes []uint64
		salts   []string
		chosen  []int
	)
	for _, entry := range entries {
		issue := Issue{Voter: entry.Voter, Ref: entry.Payload}
		rec, found, err := e.vault.Load(entry.Voter.Hex())
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", models.ErrSecretMissing, entry.Voter.Hex())
		}
		if err != nil {
			issue.Err = err
			report.Unresolved = append(report.Unresolved, issue)
			e.logger.Warn("commitment unresolved", "voter", entry.Voter.Hex(), "error", err)
			continue
		}
		stored, err := e.ledger.Commitment(ctx, entry.Voter)
		if err != nil {
			issue.Err = fmt.Errorf("failed to read commitment: %w", err)
			report.Unresolved = append(report.Unresolved, issue)
			continue
		}
		if err := s.CheckOption(rec.OptionIndex); err != nil {
			issue.Err = fmt.Errorf("%w: %w", models.ErrMalformedDocument, err)
			report.Malformed = append(report.Malformed, issue)
			continue
		}
		if err := commitment.Verify(rec.OptionIndex, rec.Salt, stored); err != nil {
			issue.Err = err
			report.Mismatched = append(report.Mismatched, issue)
			e.logger.Warn("commitment mismatch", "voter", entry.Voter.Hex(), "error", err)
			continue
		}
		voters = append(voters, entry.Voter)
		indexes = append(indexes, uint64(rec.OptionIndex))
		salts = append(salts, rec.Salt)
		chosen = append(chosen, rec.OptionIndex)
	}
	report.Counts, _ = Count(len(s.Options), chosen)
	report.Resolved = len(voters)
	e.record(report)

	r, err := e.ledger.RevealVotes(ctx, voters, indexes, salts)
	if err != nil {
		if serr := e.settle(ctx, s, report, err); serr != nil {
			return report, serr
		}
	} else {
		report.Receipt = r
		adoptFinalCounts(report, r)
		e.metrics.finalized.Inc()
		e.logger.Info("votes revealed", "session", s.ID, "revealed", len(voters), "counts", report.Counts)
	}

	for _, v := range voters {
		if err := e.vault.Clear(v.Hex()); err != nil {
			e.logger.Warn("failed to clear revealed secret", "voter", v.Hex(), "error", err)
		}
	}
	return report, nil
}

// adoptFinalCounts prefers the counts the ledger emitted over the local sum.
func adoptFinalCounts(report *Report, r *ledger.Receipt) {
	for _, ev := range r.Events {
		if ev.Kind == ledger.EventResultsFinalized {
			report.Counts = ev.Counts
			return
		}
	}
}
