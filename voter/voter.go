// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/commitment"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/vault"
)

var (
	ErrNoStore = errors.New("no ballot store configured")
	ErrNoVault = errors.New("no secret vault configured")
)

// Voter casts the connected account's vote. Store is needed for CID
// ballots, Vault for commitments.
type Voter struct {
	ledger ledger.Ledger
	store  ballotstore.Store
	vault  *vault.Vault
	logger *slog.Logger
	now    func() time.Time
}

func New(l ledger.Ledger, store ballotstore.Store, v *vault.Vault, logger *slog.Logger) *Voter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Voter{
		ledger: ledger.Serialize(l),
		store:  store,
		vault:  v,
		logger: logger.With("component", "voter", "account", l.Account().Hex()),
		now:    time.Now,
	}
}

// Ballot is the outcome of a confirmed CID vote.
type Ballot struct {
	CID     string
	Receipt *ledger.Receipt
}

// Status is the connected account's standing in the current session.
type Status struct {
	Session   models.Session
	Voter     common.Address
	HasVoted  bool
	Excluded  bool
	HasSecret bool
}

func (v *Voter) Status(ctx context.Context) (Status, error) {
	account := v.ledger.Account()
	s, err := v.ledger.Session(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read session: %w", err)
	}
	voted, err := v.ledger.HasVoted(ctx, account)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read voter status: %w", err)
	}
	st := Status{Session: s, Voter: account, HasVoted: voted, Excluded: s.IsExcluded(account)}
	if v.vault != nil {
		_, found, err := v.vault.Load(account.Hex())
		if err != nil {
			return Status{}, err
		}
		st.HasSecret = found
	}
	return st, nil
}

func (v *Voter) precheck(ctx context.Context, op models.Op, optionIndex int) (models.Session, error) {
	account := v.ledger.Account()
	s, err := v.ledger.Session(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if err := s.Permits(op); err != nil {
		return s, err
	}
	voted, err := v.ledger.HasVoted(ctx, account)
	if err != nil {
		return s, fmt.Errorf("failed to read voter status: %w", err)
	}
	if err := s.CanVote(op, account, voted); err != nil {
		return s, err
	}
	return s, s.CheckOption(optionIndex)
}

// CastBallot stores a ballot document and records its CID on the ledger.
// A storage failure aborts before anything is submitted. If the ledger call
// fails before submission or is rejected, and the ledger confirms no vote
// landed, the orphaned document is deleted on a best-effort basis. An
// unconfirmed submission keeps it, since the vote may still be mined.
func (v *Voter) CastBallot(ctx context.Context, optionIndex int) (*Ballot, error) {
	if v.store == nil {
		return nil, ErrNoStore
	}
	s, err := v.precheck(ctx, models.OpCastVote, optionIndex)
	if err != nil {
		return nil, err
	}

	doc := models.NewBallotDocument(v.ledger.Account(), s.ID, optionIndex, v.now())
	id, err := v.store.Put(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to store ballot: %w", err)
	}
	v.logger.Info("ballot stored", "cid", id, "session", s.ID)

	r, err := v.ledger.CastVote(ctx, id)
	if err != nil {
		if v.abandoned(ctx, err) {
			if derr := v.store.Delete(context.WithoutCancel(ctx), id); derr != nil {
				v.logger.Warn("failed to delete orphaned ballot", "cid", id, "error", derr)
			}
		}
		return nil, err
	}
	v.logger.Info("vote cast", "cid", id, "tx", r.TxHash.Hex())
	return &Ballot{CID: id, Receipt: r}, nil
}

// CastCommitment hides optionIndex behind a fresh salt and records the
// hash on the ledger. The secret is saved before submission and only
// cleared when the call provably never reached the ledger, so a vote that
// lands despite an error can still be revealed.
func (v *Voter) CastCommitment(ctx context.Context, optionIndex int) (common.Hash, *ledger.Receipt, error) {
	if v.vault == nil {
		return common.Hash{}, nil, ErrNoVault
	}
	s, err := v.precheck(ctx, models.OpCastCommitment, optionIndex)
	if err != nil {
		return common.Hash{}, nil, err
	}

	salt, err := commitment.GenerateSalt()
	if err != nil {
		return common.Hash{}, nil, err
	}
	hash, err := commitment.Compute(optionIndex, salt)
	if err != nil {
		return common.Hash{}, nil, err
	}
	account := v.ledger.Account().Hex()
	if err := v.vault.Save(optionIndex, salt, account); err != nil {
		return common.Hash{}, nil, err
	}

	r, err := v.ledger.CastCommitment(ctx, hash)
	if err != nil {
		if v.abandoned(ctx, err) {
			if cerr := v.vault.Clear(account); cerr != nil {
				v.logger.Error("failed to clear secret after rejected commitment", "error", cerr)
			}
		} else {
			v.logger.Warn("commitment outcome unknown, keeping secret", "session", s.ID)
		}
		return common.Hash{}, nil, err
	}
	v.logger.Info("commitment cast", "session", s.ID, "tx", r.TxHash.Hex())
	return hash, r, nil
}

// abandoned reports whether a failed cast left nothing behind: the call
// was never submitted or was rejected, and the ledger shows no vote.
func (v *Voter) abandoned(ctx context.Context, err error) bool {
	if errors.Is(err, ledger.ErrUnconfirmed) {
		var u *ledger.UnconfirmedError
		if errors.As(err, &u) {
			v.logger.Warn("submission unconfirmed, it may still be mined", "tx", u.TxHash.Hex())
		}
		return false
	}
	return v.confirmedAbsent(ctx)
}

// confirmedAbsent reports whether the ledger positively says the account
// has not voted. A failed read counts as unknown.
func (v *Voter) confirmedAbsent(ctx context.Context) bool {
	voted, err := v.ledger.HasVoted(context.WithoutCancel(ctx), v.ledger.Account())
	if err != nil {
		v.logger.Warn("could not confirm vote status", "error", err)
		return false
	}
	return !voted
}
