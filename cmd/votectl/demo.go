// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/quickly-vote/ballotstore"
	"github.com/danielhkuo/quickly-vote/config"
	"github.com/danielhkuo/quickly-vote/eventsync"
	"github.com/danielhkuo/quickly-vote/kv"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/ledger/memory"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/phase"
	"github.com/danielhkuo/quickly-vote/tally"
	"github.com/danielhkuo/quickly-vote/vault"
	"github.com/danielhkuo/quickly-vote/voter"
)

type demoOptions struct {
	voters  int
	topic   string
	options string
	exclude bool
}

func demoCommand() *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a complete session against an in-process ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg, opts, slog.Default())
		},
	}
	cmd.Flags().IntVarP(&opts.voters, "voters", "n", 5, "number of voters")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "Lunch", "session topic")
	cmd.Flags().StringVarP(&opts.options, "options", "o", "Pizza, Sushi, Tacos", "comma-separated options")
	cmd.Flags().BoolVar(&opts.exclude, "exclude-last", false, "exclude the last voter during setup")
	return cmd
}

func demoAddress(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

// runDemo walks one session through every phase. Voter i picks option
// i modulo the number of options.
func runDemo(ctx context.Context, w io.Writer, cfg *config.Config, opts demoOptions, logger *slog.Logger) error {
	if opts.voters < 1 {
		return errors.New("at least one voter is required")
	}
	coordinator := demoAddress(-1)
	chain := memory.NewChain(coordinator, cfg.Policy())
	coord := ledger.Serialize(chain.Connect(coordinator))
	ctrl := phase.NewController(coord, cfg.Policy(), logger)
	store := ballotstore.NewMemory()
	secrets := vault.New(kv.NewMemory(), cfg.VaultNamespace, logger)
	defer secrets.Close()

	bus := eventsync.NewBus(nil, logger)
	defer bus.Stop()
	_, alerts := bus.Subscribe(eventsync.TypeAlert)
	syncer := eventsync.NewSyncer(coord, bus, logger)

	step := func(what string, r *ledger.Receipt, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		printReceipt(w, what, r)
		if err := syncer.HandleReceipt(ctx, r); err != nil {
			return err
		}
		for {
			select {
			case evt := <-alerts:
				if alert, ok := evt.Data.(eventsync.Alert); ok {
					fmt.Fprintf(w, "  >> %s\n", alert.Message)
				}
			default:
				return nil
			}
		}
	}

	voters := make([]common.Address, opts.voters)
	for i := range voters {
		voters[i] = demoAddress(i)
	}

	r, err := ctrl.StartSetup(ctx)
	if err := step("setup", r, err); err != nil {
		return err
	}
	if opts.exclude {
		last := voters[len(voters)-1]
		r, err := ctrl.ExcludeVoter(ctx, last)
		if err := step("excluded "+last.Hex(), r, err); err != nil {
			return err
		}
	}
	r, err = ctrl.StartSession(ctx, opts.topic, models.SplitOptions(opts.options))
	if err := step("session started", r, err); err != nil {
		return err
	}
	s, err := coord.Session(ctx)
	if err != nil {
		return err
	}

	for i, addr := range voters {
		v := voter.New(chain.Connect(addr), store, secrets, logger)
		choice := i % len(s.Options)
		var err error
		if cfg.Variant == config.VariantCommitReveal {
			_, _, err = v.CastCommitment(ctx, choice)
		} else {
			_, err = v.CastBallot(ctx, choice)
		}
		if err != nil {
			fmt.Fprintf(w, "voter %s: %v\n", addr.Hex(), err)
			continue
		}
		fmt.Fprintf(w, "voter %s voted for %s\n", addr.Hex(), s.Options[choice])
	}

	r, err = ctrl.EndVoting(ctx)
	if err := step("voting ended", r, err); err != nil {
		return err
	}

	engine := tally.New(coord, store, tally.Options{
		Workers:      cfg.TallyWorkers,
		FetchTimeout: cfg.FetchTimeout,
		Vault:        secrets,
		Logger:       logger,
	})
	var report *tally.Report
	if cfg.Variant == config.VariantCommitReveal {
		report, err = engine.Reveal(ctx)
	} else {
		report, err = engine.Run(ctx)
	}
	if err := step("results finalized", reportReceipt(report), err); err != nil {
		return err
	}
	printReport(w, s.Options, report)
	return nil
}

func reportReceipt(r *tally.Report) *ledger.Receipt {
	if r == nil {
		return nil
	}
	return r.Receipt
}
