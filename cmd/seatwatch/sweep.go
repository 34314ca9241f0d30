package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/baechuer/seatwatch/internal/bootstrap"
	"github.com/baechuer/seatwatch/internal/config"
)

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			app, cleanup, err := bootstrap.Build(cfg, zlog.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := app.Sweeper().SweepOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "sweep %s: visited=%d skipped=%d notified=%d transient=%d incomplete=%t (%s)\n",
				rep.ID, rep.Visited, rep.Skipped, rep.Notified, rep.Transient, rep.Incomplete, rep.Duration)
			return err
		},
	}
}
