// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/vault"
)

const (
	DefaultWorkers      = 8
	DefaultFetchTimeout = 10 * time.Second
)

type Options struct {
	Workers      int
	FetchTimeout time.Duration
	// Vault supplies secrets for Reveal and is cleared after it.
	Vault      *vault.Vault
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Engine reconciles the ledger's vote log with off-chain ballots and
// finalizes the counts.
type Engine struct {
	ledger       ledger.Ledger
	store        ballotstore.Store
	vault        *vault.Vault
	workers      int
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics
}

func New(l ledger.Ledger, store ballotstore.Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		ledger:       ledger.Serialize(l),
		store:        store,
		vault:        opts.Vault,
		workers:      opts.Workers,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger.With("component", "tally"),
		metrics:      newMetrics(opts.Registerer),
	}
}

// Issue is one vote log entry left out of the counts.
type Issue struct {
	Voter common.Address
	Ref   string // CID or commitment hash
	Err   error
}

// Report summarises a tally or reveal.
type Report struct {
	Session  uint64
	Counts   []uint64
	Resolved int
	// Unresolved entries could not be read: storage unavailable, unknown
	// CID, or a missing local secret.
	Unresolved []Issue
	// Malformed entries were read but are not valid votes for this session.
	Malformed []Issue
	// Mismatched entries revealed a secret that does not hash to the
	// recorded commitment.
	Mismatched []Issue
	// AlreadyFinalized is set when the ledger held final results before
	// this run submitted its own.
	AlreadyFinalized bool
	Receipt          *ledger.Receipt
}

// Issues returns every excluded entry.
func (r *Report) Issues() []Issue {
	out := make([]Issue, 0, len(r.Unresolved)+len(r.Malformed)+len(r.Mismatched))
	out = append(out, r.Unresolved...)
	out = append(out, r.Malformed...)
	return append(out, r.Mismatched...)
}

// start reads the session and decides whether there is anything to do.
// A session that is already finalized yields a finished report.
func (e *Engine) start(ctx context.Context, op models.Op) (models.Session, *Report, error) {
	s, err := e.ledger.Session(ctx)
	if err != nil {
		return s, nil, fmt.Errorf("failed to read session: %w", err)
	}
	if err := s.Permits(op); err != nil {
		if errors.Is(err, models.ErrAlreadyFinalized) {
			e.logger.Info("session already finalized", "session", s.ID)
			return s, &Report{Session: s.ID, Counts: s.Results, AlreadyFinalized: true}, nil
		}
		return s, nil, err
	}
	return s, nil, nil
}

type fetched struct {
	doc models.BallotDocument
	err error
}

// Run tallies the CID ballots of the current session and submits the
// counts with setFinalResults. Per-entry failures are reported, not
// returned; a finalized session is success.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	s, done, err := e.start(ctx, models.OpSetFinalResults)
	if err != nil || done != nil {
		return done, err
	}

	log, err := e.ledger.VoteEvents(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read vote events: %w", err)
	}
	entries := models.DedupByVoter(log)
	if len(entries) != len(log) {
		e.logger.Warn("duplicate voters in vote log", "events", len(log), "voters", len(entries))
	}

	results := e.fetchAll(ctx, entries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Session: s.ID}
	var (
		indexes  []int
		consumed []string
	)
	for i, entry := range entries {
		issue := Issue{Voter: entry.Voter, Ref: entry.Payload}
		res := results[i]
		switch {
		case res.err != nil && errors.Is(res.err, models.ErrStorageUnavailable):
			issue.Err = res.err
			report.Unresolved = append(report.Unresolved, issue)
		case res.err != nil && errors.Is(res.err, models.ErrMalformedDocument):
			issue.Err = res.err
			report.Malformed = append(report.Malformed, issue)
		case res.err != nil:
			issue.Err = res.err
			report.Unresolved = append(report.Unresolved, issue)
		default:
			if err := checkDocument(s, entry.Voter, res.doc); err != nil {
				issue.Err = err
				report.Malformed = append(report.Malformed, issue)
				continue
			}
			indexes = append(indexes, res.doc.OptionIndex)
			consumed = append(consumed, entry.Payload)
		}
	}
	report.Counts, _ = Count(len(s.Options), indexes)
	report.Resolved = len(indexes)
	e.record(report)

	if err := e.finalize(ctx, s, report); err != nil {
		return report, err
	}
	e.cleanup(ctx, consumed)
	return report, nil
}

// fetchAll retrieves every entry's document with bounded concurrency. Each
// goroutine writes only its own slot.
func (e *Engine) fetchAll(ctx context.Context, entries []models.VoteLogEntry) []fetched {
	results := make([]fetched, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = e.fetch(gctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fetch(ctx context.Context, entry models.VoteLogEntry) fetched {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	start := time.Now()
	doc, err := e.store.Get(ctx, entry.Payload)
	e.metrics.fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
		}
		e.logger.Warn("ballot unresolved", "voter", entry.Voter.Hex(), "cid", entry.Payload, "error", err)
		return fetched{err: err}
	}
	return fetched{doc: doc}
}

// checkDocument binds a document to the event that referenced it.
func checkDocument(s models.Session, voter common.Address, doc models.BallotDocument) error {
	if !strings.EqualFold(doc.Voter, voter.Hex()) {
		return fmt.Errorf("%w: document voter %s, event voter %s", models.ErrMalformedDocument, doc.Voter, voter.Hex())
	}
	if doc.Session != s.ID {
		return fmt.Errorf("%w: document session %d, current session %d", models.ErrMalformedDocument, doc.Session, s.ID)
	}
	if err := s.CheckOption(doc.OptionIndex); err != nil {
		return fmt.Errorf("%w: %w", models.ErrMalformedDocument, err)
	}
	return nil
}

// Count sums option indexes into per-option counts. Out-of-range indexes
// are returned separately. The result does not depend on input order.
func Count(numOptions int, indexes []int) (counts []uint64, invalid []int) {
	counts = make([]uint64, numOptions)
	for _, idx := range indexes {
		if idx < 0 || idx >= numOptions {
			invalid = append(invalid, idx)
			continue
		}
		counts[idx]++
	}
	return counts, invalid
}

func (e *Engine) record(r *Report) {
	e.metrics.entries.WithLabelValues(outcomeResolved).Add(float64(r.Resolved))
	e.metrics.entries.WithLabelValues(outcomeUnresolved).Add(float64(len(r.Unresolved)))
	e.metrics.entries.WithLabelValues(outcomeMalformed).Add(float64(len(r.Malformed)))
	e.metrics.entries.WithLabelValues(outcomeMismatch).Add(float64(len(r.Mismatched)))
	for _, issue := range r.Malformed {
		e.logger.Warn("ballot excluded", "voter", issue.Voter.Hex(), "ref", issue.Ref, "error", issue.Err)
	}
}

// finalize submits report.Counts. If the call fails but the ledger now
// shows final results, somebody (possibly this call, with a lost receipt)
// already finalized: the ledger's results are adopted and the run
// succeeds.
func (e *Engine) finalize(ctx context.Context, s models.Session, report *Report) error {
	r, err := e.ledger.SetFinalResults(ctx, report.Counts)
	if err == nil {
		report.Receipt = r
		e.metrics.finalized.Inc()
		e.logger.Info("results finalized", "session", s.ID, "counts", report.Counts, "tx", r.TxHash.Hex())
		return nil
	}
	return e.settle(ctx, s, report, err)
}

// settle decides whether a failed finalizing call left the session
// finalized anyway.
func (e *Engine) settle(ctx context.Context, s models.Session, report *Report, callErr error) error {
	after, rerr := e.ledger.Session(context.WithoutCancel(ctx))
	if rerr != nil || after.ID != s.ID || !after.TallyComplete {
		return callErr
	}
	report.AlreadyFinalized = true
	report.Counts = after.Results
	e.logger.Info("session was already finalized", "session", s.ID, "error", callErr)
	return nil
}

// cleanup deletes consumed documents. Failures are logged and ignored.
func (e *Engine) cleanup(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, id := range ids {
		if err := e.store.Delete(ctx, id); err != nil {
			failed++
			e.logger.Warn("failed to delete ballot", "cid", id, "error", err)
		}
	}
	if len(ids) > 0 {
		e.logger.Info("ballot cleanup done", "deleted", len(ids)-failed, "failed", failed)
	}
}
