// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielhkuo/quickly-vote/config"
	"github.com/danielhkuo/quickly-vote/eventsync"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/tally"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session and this account's standing",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			v, err := a.voter()
			if err != nil {
				return err
			}
			st, err := v.Status(ctx)
			if err != nil {
				return err
			}
			printSession(a.out, st.Session)
			fmt.Fprintf(a.out, "Account: %s\n", st.Voter.Hex())
			fmt.Fprintf(a.out, "  voted: %t  excluded: %t", st.HasVoted, st.Excluded)
			if a.cfg.Variant == config.VariantCommitReveal {
				fmt.Fprintf(a.out, "  secret stored: %t", st.HasSecret)
			}
			fmt.Fprintln(a.out)
			return nil
		}),
	}
}

func resultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Show the finalized results",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			s, err := a.ledger.Session(ctx)
			if err != nil {
				return err
			}
			if !s.TallyComplete {
				fmt.Fprintf(a.out, "Results for session %d are not available yet (phase %s).\n", s.ID, s.Phase)
				return nil
			}
			for i, opt := range s.Options {
				var n uint64
				if i < len(s.Results) {
					n = s.Results[i]
				}
				fmt.Fprintf(a.out, "  %s: %d\n", opt, n)
			}
			fmt.Fprintln(a.out, tally.Winners(s.Options, s.Results))
			return nil
		}),
	}
}

func setupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Open a new session in the Setup phase (coordinator)",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			r, err := a.controller().StartSetup(ctx)
			if err != nil {
				return err
			}
			printReceipt(a.out, "setup", r)
			return nil
		}),
	}
}

func startCommand() *cobra.Command {
	var topic, options string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start voting with a topic and options (coordinator)",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			r, err := a.controller().StartSession(ctx, topic, models.SplitOptions(options))
			if err != nil {
				return err
			}
			printReceipt(a.out, "session started", r)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "session topic")
	cmd.Flags().StringVarP(&options, "options", "o", "", "comma-separated options")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("options")
	return cmd
}

func endCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End voting and move to the Reveal phase (coordinator)",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			r, err := a.controller().EndVoting(ctx)
			if err != nil {
				return err
			}
			printReceipt(a.out, "voting ended", r)
			return nil
		}),
	}
}

func excludeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exclude <address>",
		Short: "Exclude a voter from the session in setup (coordinator)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			r, err := a.controller().ExcludeVoter(ctx, addr)
			if err != nil {
				return err
			}
			printReceipt(a.out, "excluded "+addr.Hex(), r)
			return nil
		}),
	}
}

func reinstateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reinstate <address>",
		Short: "Reinstate an excluded voter (coordinator)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			r, err := a.controller().ReinstateVoter(ctx, addr)
			if err != nil {
				return err
			}
			printReceipt(a.out, "reinstated "+addr.Hex(), r)
			return nil
		}),
	}
}

func checkVoterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-voter <address>",
		Short: "Report whether an address may vote now",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			if _, err := a.controller().CheckCanVote(ctx, addr); err != nil {
				fmt.Fprintf(a.out, "%s cannot vote: %v\n", addr.Hex(), err)
				return nil
			}
			fmt.Fprintf(a.out, "%s can vote\n", addr.Hex())
			return nil
		}),
	}
}

func voteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <option-index>",
		Short: "Cast this account's vote",
		Long: "Cast this account's vote. With the cid variant the ballot document is\n" +
			"pinned on the relay and its CID recorded; with commit-reveal a hash\n" +
			"commitment is recorded and the secret kept in the local vault.",
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			idx, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("%w: %q", models.ErrInvalidOption, args[0])
			}
			v, err := a.voter()
			if err != nil {
				return err
			}
			if a.cfg.Variant == config.VariantCommitReveal {
				hash, r, err := v.CastCommitment(ctx, idx)
				if err != nil {
					return err
				}
				printReceipt(a.out, "commitment "+hash.Hex(), r)
				return nil
			}
			b, err := v.CastBallot(ctx, idx)
			if err != nil {
				return err
			}
			printReceipt(a.out, "ballot "+b.CID, b.Receipt)
			return nil
		}),
	}
}

func tallyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tally",
		Short: "Count the votes and publish final results (coordinator)",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			var report *tally.Report
			if a.cfg.Variant == config.VariantCommitReveal {
				report, err = e.Reveal(ctx)
			} else {
				report, err = e.Run(ctx)
			}
			if err != nil {
				return err
			}
			s, err := a.ledger.Session(ctx)
			if err != nil {
				return err
			}
			printReport(a.out, s.Options, report)
			return nil
		}),
	}
}

func watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the contract and print notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			bus := eventsync.NewBus(nil, a.logger)
			defer bus.Stop()
			bus.SubscribeFunc(eventsync.TypeAlert, func(evt eventsync.Event) {
				if alert, ok := evt.Data.(eventsync.Alert); ok {
					fmt.Fprintf(a.out, "[session %d] %s\n", alert.Session, alert.Message)
				}
			})
			bus.SubscribeFunc(eventsync.TypeStateChanged, func(evt eventsync.Event) {
				if sc, ok := evt.Data.(eventsync.StateChanged); ok {
					fmt.Fprintf(a.out, "session %d: phase %s\n", sc.Current.ID, sc.Current.Phase)
				}
			})
			err := eventsync.NewSyncer(a.ledger, bus, a.logger).Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}),
	}
}
