// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/config"
	"github.com/danielhkuo/quickly-vote/kv"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/ledger/eth"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/phase"
	"github.com/danielhkuo/quickly-vote/tally"
	"github.com/danielhkuo/quickly-vote/vault"
	"github.com/danielhkuo/quickly-vote/voter"
)

// app holds what a command needs. Pieces are opened lazily so read-only
// commands never touch the vault or the relay.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	ledger ledger.Ledger
	vault  *vault.Vault
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.RequireLedger(); err != nil {
		return nil, err
	}
	logger := slog.Default()

	ethCfg := eth.Config{
		Contract:       common.HexToAddress(cfg.ContractAddress),
		StartBlock:     cfg.StartBlock,
		ReceiptTimeout: cfg.ReceiptTimeout,
		Logger:         logger,
	}
	if cfg.PrivateKey != "" {
		key, err := eth.ParseKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		ethCfg.Key = key
	} else if cfg.Account != "" {
		ethCfg.From = common.HexToAddress(cfg.Account)
	}
	client, err := eth.Dial(cmd.Context(), cfg.RPCURL, ethCfg)
	if err != nil {
		return nil, err
	}
	// one slot for every component acting as this account
	return &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout(), ledger: ledger.Serialize(client)}, nil
}

func (a *app) close() {
	if a.vault != nil {
		if err := a.vault.Close(); err != nil {
			a.logger.Warn("failed to close vault", "error", err)
		}
	}
}

func (a *app) openVault() (*vault.Vault, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	store, err := kv.OpenBadger(a.cfg.VaultDir, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	a.vault = vault.New(store, a.cfg.VaultNamespace, a.logger)
	return a.vault, nil
}

func (a *app) store() ballotstore.Store {
	return ballotstore.NewRelayClient(a.cfg.RelayURL, a.cfg.RelayAPIKey, a.cfg.RelayTimeout, a.logger)
}

func (a *app) controller() *phase.Controller {
	return phase.NewController(a.ledger, a.cfg.Policy(), a.logger)
}

func (a *app) voter() (*voter.Voter, error) {
	if a.cfg.Variant == config.VariantCommitReveal {
		v, err := a.openVault()
		if err != nil {
			return nil, err
		}
		return voter.New(a.ledger, nil, v, a.logger), nil
	}
	return voter.New(a.ledger, a.store(), nil, a.logger), nil
}

func (a *app) engine() (*tally.Engine, error) {
	opts := tally.Options{
		Workers:      a.cfg.TallyWorkers,
		FetchTimeout: a.cfg.FetchTimeout,
		Logger:       a.logger,
	}
	if a.cfg.Variant == config.VariantCommitReveal {
		v, err := a.openVault()
		if err != nil {
			return nil, err
		}
		opts.Vault = v
	}
	return tally.New(a.ledger, a.store(), opts), nil
}

// withApp runs fn with an app built from the command's configuration.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printReceipt(w io.Writer, what string, r *ledger.Receipt) {
	if r == nil {
		fmt.Fprintf(w, "%s: confirmed\n", what)
		return
	}
	fmt.Fprintf(w, "%s: confirmed in block %d (tx %s)\n", what, r.BlockNumber, r.TxHash.Hex())
}

func printSession(w io.Writer, s models.Session) {
	fmt.Fprintf(w, "Session: %d\n", s.ID)
	fmt.Fprintf(w, "Phase:   %s\n", s.Phase)
	if s.Topic != "" {
		fmt.Fprintf(w, "Topic:   %s\n", s.Topic)
	}
	for i, opt := range s.Options {
		fmt.Fprintf(w, "  [%d] %s\n", i, opt)
	}
	if len(s.ExcludedVoters) > 0 {
		fmt.Fprintln(w, "Excluded:")
		for _, v := range s.ExcludedVoters {
			fmt.Fprintf(w, "  %s\n", v.Hex())
		}
	}
	if s.TallyComplete {
		fmt.Fprintln(w, tally.Winners(s.Options, s.Results))
	}
}

func printReport(w io.Writer, options []string, r *tally.Report) {
	if r.AlreadyFinalized {
		fmt.Fprintln(w, "Results were already finalized.")
	}
	fmt.Fprintf(w, "Resolved: %d  Unresolved: %d  Malformed: %d  Mismatched: %d\n",
		r.Resolved, len(r.Unresolved), len(r.Malformed), len(r.Mismatched))
	for _, issue := range r.Issues() {
		fmt.Fprintf(w, "  skipped %s (%s): %v\n", issue.Voter.Hex(), issue.Ref, issue.Err)
	}
	for i, c := range r.Counts {
		name := fmt.Sprintf("option %d", i)
		if i < len(options) {
			name = options[i]
		}
		fmt.Fprintf(w, "  %s: %d\n", name, c)
	}
	fmt.Fprintln(w, tally.Winners(options, r.Counts))
}
