package main

import (
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run delivery workers only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, "worker")
			if err != nil {
				return err
			}
			defer a.close()

			n := a.cfg.Delivery.Concurrency
			if concurrency > 0 {
				n = concurrency
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
			log.Info().Int("concurrency", n).Msg("delivery workers starting")
			err = a.worker(a.sender()).RunPool(ctx, n)
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return err
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "number of worker loops (default from WORKER_CONCURRENCY)")
	return cmd
}
