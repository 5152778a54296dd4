package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/railbridge/railbridge/internal/config"
	"github.com/railbridge/railbridge/internal/storage"
)

// Relay runs the mailbox poller and its operational HTTP server as one unit.
type Relay struct {
	cfg    config.RelayConfig
	poller *Poller
	api    *Server
	logger *slog.Logger
}

func New(cfg config.RelayConfig, store storage.ObjectStore, logger *slog.Logger) *Relay {
	stats := NewStats()
	poller := NewPoller(store, cfg.GatewayURL, cfg.GatewayToken,
		cfg.Prefix, cfg.RequestSuffix, cfg.HTTPTimeout.Duration, stats, logger)

	api := NewServer(poller, stats, ServerInfo{
		GatewayURL:   cfg.GatewayURL,
		Bucket:       cfg.S3.Bucket,
		Prefix:       cfg.Prefix,
		PollInterval: cfg.PollInterval.Duration.String(),
	}, logger)

	return &Relay{
		cfg:    cfg,
		poller: poller,
		api:    api,
		logger: logger.With("component", "relay"),
	}
}

// Run starts the poll loop and HTTP server and blocks until the context is
// canceled or the server fails.
func (r *Relay) Run(ctx context.Context) error {
	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		r.poller.Run(pollCtx, r.cfg.PollInterval.Duration)
	}()

	srv := &http.Server{
		Addr:    r.cfg.Addr,
		Handler: r.api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("relay listening", "addr", r.cfg.Addr,
			"gateway", r.cfg.GatewayURL, "bucket", r.cfg.S3.Bucket, "prefix", r.cfg.Prefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutting down relay")

		stopPoll()
		<-pollDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		}

		r.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		stopPoll()
		<-pollDone
		return err
	}
}
