// Package mcp manages session-scoped MCP server subprocesses speaking
// line-delimited JSON-RPC 2.0 on stdio, correlating concurrent in-flight
// calls by id.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/railbridge/railbridge/internal/frame"
	"github.com/railbridge/railbridge/internal/jsonrpc"
)

// State is a session's lifecycle state.
type State string

const (
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateTerminated State = "terminated"
)

// DefaultCallTimeout is the deadline applied to a call when the spawn
// config does not override it.
const DefaultCallTimeout = 30 * time.Second

// expireSweepInterval is the cadence of the pending-table deadline sweep.
const expireSweepInterval = time.Second

// SpawnConfig describes how to start the MCP server subprocess.
type SpawnConfig struct {
	Command     string
	Args        []string
	WorkDir     string
	Env         map[string]string // appended to the inherited environment
	CallTimeout time.Duration
}

func (c SpawnConfig) callTimeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return DefaultCallTimeout
}

// Session owns one MCP subprocess. It is the only writer to the process's
// stdin and the only reader of its stdout. When the process exits, every
// pending call fails with ErrProcessTerminated and onExit fires so the
// registry can drop the session.
type Session struct {
	ID        string
	CreatedAt time.Time

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending *pendingTable
	timeout time.Duration
	logger  *slog.Logger
	onExit  func(*Session)

	state   atomic.Value // State
	writeMu sync.Mutex   // serializes stdin writes: one full line per write
	readers sync.WaitGroup
	done    chan struct{} // closed once terminated
}

// NewSession spawns the subprocess described by cfg and wires its stdio.
func NewSession(id string, cfg SpawnConfig, onExit func(*Session), logger *slog.Logger) (*Session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	return newSession(id, cmd, stdin, stdout, stderr, cfg.callTimeout(), onExit, logger), nil
}

// newSession wires an already-started process (or, in tests, bare pipes)
// into a running session.
func newSession(id string, cmd *exec.Cmd, stdin io.WriteCloser, stdout, stderr io.Reader, timeout time.Duration, onExit func(*Session), logger *slog.Logger) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		cmd:       cmd,
		stdin:     stdin,
		timeout:   timeout,
		logger:    logger.With("session_id", id),
		onExit:    onExit,
		done:      make(chan struct{}),
	}
	s.pending = newPendingTable(s.logger)
	s.state.Store(StateStarting)

	s.readers.Add(1)
	go s.readStdout(stdout)
	if stderr != nil {
		s.readers.Add(1)
		go s.logStderr(stderr)
	}

	// Reap the process once both pipes drain, then drain the pending table.
	go func() {
		s.readers.Wait()
		var waitErr error
		if s.cmd != nil {
			waitErr = s.cmd.Wait()
		}
		s.terminate(waitErr)
	}()

	go s.sweepLoop()

	s.state.Store(StateReady)
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state.Load().(State)
}

// Done is closed when the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// PendingCalls reports the number of in-flight calls.
func (s *Session) PendingCalls() int {
	return s.pending.size()
}

// Call sends one JSON-RPC request to the subprocess and suspends until the
// matching response line arrives, the deadline passes, ctx is canceled, or
// the process exits. Correlation is solely by the minted call id, never by
// arrival order.
func (s *Session) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if s.State() == StateTerminated {
		return nil, ErrProcessTerminated
	}

	id := uuid.NewString()
	call, err := s.pending.register(id, time.Now().Add(s.timeout))
	if err != nil {
		return nil, err
	}

	if err := s.writeLine(jsonrpc.NewRequest(id, method, params)); err != nil {
		s.pending.fail(id, err)
		<-call.done
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case out := <-call.done:
		return out.resp, out.err
	case <-ctx.Done():
		if s.pending.fail(id, ctx.Err()) {
			return nil, ctx.Err()
		}
		// Resolved concurrently with cancellation; take the real outcome.
		out := <-call.done
		return out.resp, out.err
	}
}

// Notify sends a JSON-RPC notification; no response is expected.
func (s *Session) Notify(method string, params any) error {
	if s.State() == StateTerminated {
		return ErrProcessTerminated
	}
	return s.writeLine(jsonrpc.Notification(method, params))
}

// writeLine marshals v and writes it as one newline-terminated line. The
// write mutex keeps concurrent calls from interleaving partial JSON on the
// subprocess's stdin.
func (s *Session) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.stdin.Write(data)
	return err
}

// Close kills the subprocess and blocks until termination has drained the
// pending table.
func (s *Session) Close() {
	_ = s.stdin.Close()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.done
}

// readStdout drains the subprocess output through the frame reader and
// dispatches each complete line. No backpressure: reads are drained as fast
// as delivered.
func (s *Session) readStdout(r io.Reader) {
	defer s.readers.Done()

	fr := &frame.Reader{}
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range fr.Feed(buf[:n]) {
				s.dispatch(line)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("stdout read failed", "error", err)
			}
			if fr.Pending() > 0 {
				s.logger.Warn("discarding incomplete trailing frame", "bytes", fr.Pending())
			}
			return
		}
	}
}

// dispatch parses one frame and resolves the matching pending call. A line
// that fails to parse is logged and dropped: it cannot be correlated and no
// faithful reconstruction is possible.
func (s *Session) dispatch(line []byte) {
	var msg jsonrpc.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.Warn("discarding malformed frame", "error", err, "bytes", len(line))
		return
	}
	if !msg.IsResponse() {
		// Server-initiated requests and notifications are not part of the
		// bridge contract; only responses correlate.
		s.logger.Debug("ignoring non-response message", "method", msg.Method)
		return
	}
	s.pending.resolve(callID(msg.ID), msg.AsResponse())
}

func (s *Session) logStderr(r io.Reader) {
	defer s.readers.Done()

	fr := &frame.Reader{}
	buf := make([]byte, 8*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range fr.Feed(buf[:n]) {
				s.logger.Debug("mcp stderr", "line", string(line))
			}
		}
		if err != nil {
			return
		}
	}
}

// sweepLoop expires overdue calls at a fixed cadence until termination.
func (s *Session) sweepLoop() {
	ticker := time.NewTicker(expireSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := s.pending.expireSweep(now); n > 0 {
				s.logger.Warn("expired pending calls", "count", n)
			}
		case <-s.done:
			return
		}
	}
}

// terminate moves the session to Terminated, synchronously fails every
// pending call, and then notifies the registry. Ordering matters: the table
// is drained before the registry entry disappears so a terminated session
// never appears live with calls still suspended.
func (s *Session) terminate(waitErr error) {
	s.state.Store(StateTerminated)
	if n := s.pending.failAll(ErrProcessTerminated); n > 0 {
		s.logger.Warn("failed pending calls on process exit", "count", n)
	}
	close(s.done)

	s.logger.Info("session terminated", "error", waitErr)
	if s.onExit != nil {
		s.onExit(s)
	}
}

// callID normalizes a response id for table lookup. Minted ids are UUID
// strings; anything else is a stray and will miss the table with a warning.
func callID(v any) string {
	if id, ok := v.(string); ok {
		return id
	}
	return fmt.Sprint(v)
}
