package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xenob8/SimpleTransfromerTTS/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve synthesis over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("starting http server",
				slog.String("listen_addr", cfg.Server.ListenAddr),
				slog.Int("workers", cfg.Server.Workers),
			)

			return server.New(cfg, nil).Start(ctx)
		},
	}

	return cmd
}
