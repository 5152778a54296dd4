package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/railbridge/railbridge/internal/metrics"
)

// Stats are the relay's process-wide counters: initialized at start,
// monotonically updated, reset only by restart.
type Stats struct {
	start time.Time

	requestsProcessed atomic.Int64
	errors            atomic.Int64

	mu          sync.Mutex
	lastPoll    time.Time
	lastRequest time.Time
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

func (s *Stats) RecordPoll() {
	metrics.RelayPolls.Inc()
	s.mu.Lock()
	s.lastPoll = time.Now()
	s.mu.Unlock()
}

func (s *Stats) RecordRequest() {
	metrics.RelayRequestsProcessed.Inc()
	s.requestsProcessed.Add(1)
	s.mu.Lock()
	s.lastRequest = time.Now()
	s.mu.Unlock()
}

func (s *Stats) RecordError() {
	metrics.RelayErrors.Inc()
	s.errors.Add(1)
}

// Snapshot is the JSON shape reported on /health.
type Snapshot struct {
	RequestsProcessed int64  `json:"requestsProcessed"`
	Errors            int64  `json:"errors"`
	LastPoll          string `json:"lastPoll,omitempty"`
	LastRequest       string `json:"lastRequest,omitempty"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	lastPoll, lastRequest := s.lastPoll, s.lastRequest
	s.mu.Unlock()

	snap := Snapshot{
		RequestsProcessed: s.requestsProcessed.Load(),
		Errors:            s.errors.Load(),
		UptimeSeconds:     int64(time.Since(s.start).Seconds()),
	}
	if !lastPoll.IsZero() {
		snap.LastPoll = lastPoll.UTC().Format(time.RFC3339)
	}
	if !lastRequest.IsZero() {
		snap.LastRequest = lastRequest.UTC().Format(time.RFC3339)
	}
	return snap
}
