package mcp

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry maps external session ids to live sessions, creating them lazily.
// It is the only mutation point for the session map; creation and
// termination-removal are mutually exclusive per id so two subprocesses
// never run under one session id.
type Registry struct {
	spawn  SpawnConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. Every session it spawns uses cfg.
func NewRegistry(cfg SpawnConfig, logger *slog.Logger) *Registry {
	return &Registry{
		spawn:    cfg,
		logger:   logger.With("component", "registry"),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for sessionID, spawning a fresh
// subprocess if none exists or the previous one has terminated.
func (r *Registry) GetOrCreate(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok && s.State() != StateTerminated {
		return s, nil
	}

	s, err := NewSession(sessionID, r.spawn, r.remove, r.logger)
	if err != nil {
		return nil, fmt.Errorf("spawn mcp server: %w", err)
	}
	r.sessions[sessionID] = s
	r.logger.Info("session created", "session_id", sessionID)
	return s, nil
}

// remove drops a terminated session. The pointer comparison keeps a stale
// termination from evicting a newer session registered under the same id.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID]; ok && cur == s {
		delete(r.sessions, s.ID)
		r.logger.Info("session removed", "session_id", s.ID)
	}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll kills every session's subprocess and waits for each to drain.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
