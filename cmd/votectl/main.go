// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/danielhkuo/quickly-vote/config"
)

const programName = "votectl"

type globalFlags struct {
	debug      bool
	configFile string
}

func slogPrintf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", programName)
}

// commonRun sets up logging on stderr so stdout stays readable.
func commonRun(flags *globalFlags) *slog.Logger {
	level := slog.LevelInfo
	if flags.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: flags.debug,
		Level:     level,
	}))
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}
	return logger
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Coordinate and take part in on-chain voting sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			commonRun(flags)
			cfg, err := config.LoadConfig(flags.configFile)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "votectl.yaml", "path to config file")

	rootCmd.AddCommand(
		statusCommand(),
		resultsCommand(),
		setupCommand(),
		startCommand(),
		endCommand(),
		excludeCommand(),
		reinstateCommand(),
		checkVoterCommand(),
		voteCommand(),
		tallyCommand(),
		watchCommand(),
		demoCommand(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
