package mcp

import (
	"log/slog"
	"sync"
	"time"

	"github.com/railbridge/railbridge/internal/jsonrpc"
)

// outcome is the single resolution of a pending call: a response envelope or
// an error, never both.
type outcome struct {
	resp *jsonrpc.Response
	err  error
}

// pendingCall is one in-flight request awaiting its response line.
type pendingCall struct {
	id        string
	createdAt time.Time
	deadline  time.Time
	done      chan outcome // buffered; exactly one send ever happens
}

// pendingTable maps in-flight call ids to their waiting callers. All entry
// mutation happens under mu; outcome delivery happens after the entry has
// been removed, so each call resolves exactly once.
type pendingTable struct {
	logger *slog.Logger

	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable(logger *slog.Logger) *pendingTable {
	return &pendingTable{
		logger: logger,
		calls:  make(map[string]*pendingCall),
	}
}

// register inserts a new entry. It fails with ErrDuplicateID if id is
// already pending.
func (t *pendingTable) register(id string, deadline time.Time) (*pendingCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[id]; exists {
		return nil, ErrDuplicateID
	}
	c := &pendingCall{
		id:        id,
		createdAt: time.Now(),
		deadline:  deadline,
		done:      make(chan outcome, 1),
	}
	t.calls[id] = c
	return c, nil
}

// resolve completes the call with a response envelope. A response for an
// unknown id (stray, duplicate, or arriving after expiry) is logged and
// dropped.
func (t *pendingTable) resolve(id string, resp *jsonrpc.Response) {
	t.mu.Lock()
	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("response for unknown call id", "call_id", id)
		return
	}
	c.done <- outcome{resp: resp}
}

// fail completes the call with an error. It reports whether the entry was
// still pending.
func (t *pendingTable) fail(id string, err error) bool {
	t.mu.Lock()
	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	c.done <- outcome{err: err}
	return true
}

// expireSweep removes every entry whose deadline has passed and fails it
// with ErrTimeout. It returns the number of expired calls.
func (t *pendingTable) expireSweep(now time.Time) int {
	t.mu.Lock()
	var expired []*pendingCall
	for id, c := range t.calls {
		if now.After(c.deadline) {
			delete(t.calls, id)
			expired = append(expired, c)
		}
	}
	t.mu.Unlock()

	for _, c := range expired {
		t.logger.Warn("call expired with no response", "call_id", c.id, "age", now.Sub(c.createdAt))
		c.done <- outcome{err: ErrTimeout}
	}
	return len(expired)
}

// failAll drains the table, failing every entry with err. Used when the
// owning subprocess exits.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	drained := make([]*pendingCall, 0, len(t.calls))
	for id, c := range t.calls {
		delete(t.calls, id)
		drained = append(drained, c)
	}
	t.mu.Unlock()

	for _, c := range drained {
		c.done <- outcome{err: err}
	}
	return len(drained)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
