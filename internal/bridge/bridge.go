package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/railbridge/railbridge/internal/config"
	"github.com/railbridge/railbridge/internal/mcp"
	"github.com/railbridge/railbridge/internal/secrets"
)

// Bridge ties the session registry and the HTTP API together.
type Bridge struct {
	cfg      config.BridgeConfig
	registry *mcp.Registry
	api      *Server
	logger   *slog.Logger
}

// registrySessions adapts *mcp.Registry to the SessionSource interface.
type registrySessions struct {
	reg *mcp.Registry
}

func (r registrySessions) GetOrCreate(sessionID string) (Caller, error) {
	return r.reg.GetOrCreate(sessionID)
}

func (r registrySessions) Count() int {
	return r.reg.Count()
}

// New creates a bridge from configuration. The Railway API token is looked
// up from the secret source and injected into every subprocess environment.
func New(cfg config.BridgeConfig, src secrets.Source, version string, logger *slog.Logger) *Bridge {
	env := make(map[string]string, len(cfg.MCP.Env)+1)
	for k, v := range cfg.MCP.Env {
		env[k] = v
	}
	token, tokenSet := src.Lookup(cfg.MCP.RailwayTokenKey)
	if tokenSet {
		env["RAILWAY_API_TOKEN"] = token
	} else {
		logger.Warn("railway token not configured; MCP tool calls will fail to authenticate",
			"key", cfg.MCP.RailwayTokenKey)
	}

	registry := mcp.NewRegistry(mcp.SpawnConfig{
		Command:     cfg.MCP.Command,
		Args:        cfg.MCP.Args,
		WorkDir:     cfg.MCP.WorkDir,
		Env:         env,
		CallTimeout: cfg.MCP.CallTimeout.Duration,
	}, logger)

	api := NewServer(registrySessions{registry}, cfg.AuthToken, tokenSet, version, logger)

	return &Bridge{
		cfg:      cfg,
		registry: registry,
		api:      api,
		logger:   logger.With("component", "bridge"),
	}
}

// Run starts the HTTP server and blocks until the context is canceled. On
// shutdown every session subprocess is killed and drained.
func (b *Bridge) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    b.cfg.Addr,
		Handler: b.api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("bridge listening", "addr", b.cfg.Addr, "auth", b.cfg.AuthToken != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down bridge")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			b.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		}

		b.registry.CloseAll()
		b.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		b.registry.CloseAll()
		return err
	}
}
