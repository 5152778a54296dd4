package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the relay's operational endpoints. The relay listens on a
// private network only, so none of them require auth.
type Server struct {
	poller *Poller
	stats  *Stats
	cfg    ServerInfo
	logger *slog.Logger
	mux    *chi.Mux
}

// ServerInfo is the static configuration echoed on /health so operators can
// verify what the relay is wired to.
type ServerInfo struct {
	GatewayURL   string `json:"gatewayUrl"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	PollInterval string `json:"pollInterval"`
}

func NewServer(poller *Poller, stats *Stats, cfg ServerInfo, logger *slog.Logger) *Server {
	s := &Server{
		poller: poller,
		stats:  stats,
		cfg:    cfg,
		logger: logger.With("component", "relay_api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	r.Post("/poll", s.handlePoll)
	r.Handle("/metrics", promhttp.Handler())

	s.mux = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"config": s.cfg,
		"stats":  s.stats.Snapshot(),
	})
}

// handlePoll forces an immediate mailbox sweep outside the regular tick,
// useful when a requester knows work is waiting.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := s.poller.Poll(ctx); err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  s.stats.Snapshot(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
