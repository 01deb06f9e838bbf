package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-csm/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the speech generation HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			gen, closeGen, err := buildGenerator(cfg)
			if err != nil {
				return err
			}
			defer closeGen()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{
				ListenAddr:     cfg.Server.ListenAddr,
				Workers:        cfg.Server.Workers,
				MaxTextBytes:   cfg.Server.MaxTextBytes,
				RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
			}, gen)

			return srv.Start(ctx)
		},
	}

	return cmd
}
