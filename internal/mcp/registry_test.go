package mcp

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func waitForCount(t *testing.T, reg *Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("count = %d, want %d", reg.Count(), want)
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestRegistryReusesLiveSession(t *testing.T) {
	requireTool(t, "cat")
	reg := NewRegistry(SpawnConfig{Command: "cat"}, testLogger())
	defer reg.CloseAll()

	a, err := reg.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := reg.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if a != b {
		t.Fatal("same session id produced two sessions")
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d", reg.Count())
	}
}

func TestRegistryRecreatesAfterTermination(t *testing.T) {
	requireTool(t, "cat")
	reg := NewRegistry(SpawnConfig{Command: "cat"}, testLogger())
	defer reg.CloseAll()

	a, err := reg.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Close()
	waitForCount(t, reg, 0)

	b, err := reg.GetOrCreate("s1")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if a == b {
		t.Fatal("terminated session was handed out again")
	}
	if b.State() == StateTerminated {
		t.Fatal("fresh session already terminated")
	}
}

func TestRegistryIsolatesSessions(t *testing.T) {
	requireTool(t, "cat")
	reg := NewRegistry(SpawnConfig{Command: "cat"}, testLogger())
	defer reg.CloseAll()

	a, _ := reg.GetOrCreate("s1")
	b, _ := reg.GetOrCreate("s2")
	if a == b {
		t.Fatal("distinct ids share one session")
	}
	if reg.Count() != 2 {
		t.Fatalf("count = %d", reg.Count())
	}

	a.Close()
	waitForCount(t, reg, 1)
	if b.State() == StateTerminated {
		t.Fatal("closing one session terminated another")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	requireTool(t, "cat")
	reg := NewRegistry(SpawnConfig{Command: "cat"}, testLogger())

	s1, _ := reg.GetOrCreate("s1")
	s2, _ := reg.GetOrCreate("s2")

	reg.CloseAll()

	for _, s := range []*Session{s1, s2} {
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("session still alive after CloseAll")
		}
	}
	waitForCount(t, reg, 0)
}

func TestRegistrySpawnFailure(t *testing.T) {
	reg := NewRegistry(SpawnConfig{Command: "/nonexistent/railbridge-test-binary"}, testLogger())
	if _, err := reg.GetOrCreate("s1"); err == nil {
		t.Fatal("expected spawn error")
	}
	if reg.Count() != 0 {
		t.Fatalf("count = %d after failed spawn", reg.Count())
	}
}

// Round-trip against a shell echo server that turns each request into a
// matching response line.
func TestSessionCallRoundTrip(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sed")

	script := `while IFS= read -r line; do printf '%s\n' "$line" | sed 's/"method":"ping"/"result":{"ok":true}/'; done`
	reg := NewRegistry(SpawnConfig{
		Command:     "sh",
		Args:        []string{"-c", script},
		CallTimeout: 5 * time.Second,
	}, testLogger())
	defer reg.CloseAll()

	s, err := reg.GetOrCreate("echo")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := s.Call(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Fatalf("result = %s", resp.Result)
	}
}
