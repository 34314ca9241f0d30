package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/baechuer/seatwatch/internal/config"
	"github.com/baechuer/seatwatch/internal/logger"
)

const programName = "seatwatch"

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Watches class sections and pings Discord users when seats open",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(requestsCommand())
	rootCmd.AddCommand(sweepCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sweeper, the Discord bot and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if code := Run(buildFromBootstrap, sigCh, cfg.ShutdownWait, zlog.Logger); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}
