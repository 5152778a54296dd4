package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/railbridge/railbridge/internal/relay"
	"github.com/railbridge/railbridge/internal/storage"
)

func newRelayCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Start the object-storage mailbox relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if err := cfg.ValidateRelay(); err != nil {
				return fmt.Errorf("error: %w", err)
			}
			logger := buildLogger(cfg.LogLevel)

			store, err := storage.NewS3Store(cfg.Relay.S3)
			if err != nil {
				return fmt.Errorf("error: connect object storage: %w", err)
			}

			r := relay.New(cfg.Relay, store, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("received signal, shutting down", "signal", sig)
				cancel()
			}()

			logger.Info("railbridge relay starting", "version", version, "addr", cfg.Relay.Addr)

			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay error", "error", err)
				os.Exit(1)
			}

			logger.Info("relay stopped")
			return nil
		},
	}
}
