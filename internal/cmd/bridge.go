package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/railbridge/railbridge/internal/bridge"
	"github.com/railbridge/railbridge/internal/secrets"
)

func newBridgeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Start the HTTP bridge over a stdio MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			logger := buildLogger(cfg.LogLevel)

			b := bridge.New(cfg.Bridge, secrets.EnvSource{}, version, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("received signal, shutting down", "signal", sig)
				cancel()
			}()

			logger.Info("railbridge bridge starting", "version", version, "addr", cfg.Bridge.Addr)

			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bridge error", "error", err)
				os.Exit(1)
			}

			logger.Info("bridge stopped")
			return nil
		},
	}
}
