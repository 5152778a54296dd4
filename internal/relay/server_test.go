package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/railbridge/railbridge/internal/storage"
)

func newTestRelayServer(t *testing.T, store storage.ObjectStore, gatewayURL string) (*Server, *Stats) {
	t.Helper()
	stats := NewStats()
	poller := NewPoller(store, gatewayURL, "", "requests/", ".json", 5*time.Second, stats, testLogger())
	srv := NewServer(poller, stats, ServerInfo{
		GatewayURL:   gatewayURL,
		Bucket:       "mailbox",
		Prefix:       "requests/",
		PollInterval: "1s",
	}, testLogger())
	return srv, stats
}

func TestHealthReportsConfigAndStats(t *testing.T) {
	srv, stats := newTestRelayServer(t, storage.NewMemoryStore(), "http://gw/mcp")
	stats.RecordPoll()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string     `json:"status"`
		Config ServerInfo `json:"config"`
		Stats  Snapshot   `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q", body.Status)
	}
	if body.Config.GatewayURL != "http://gw/mcp" || body.Config.Bucket != "mailbox" {
		t.Fatalf("config = %+v", body.Config)
	}
	if body.Stats.LastPoll == "" {
		t.Fatal("lastPoll missing after a recorded poll")
	}
}

func TestForcedPollDrainsMailbox(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{}}`))
	}))
	defer gw.Close()

	store := storage.NewMemoryStore()
	_ = store.Put(context.Background(), "requests/req1.json",
		[]byte(`{"jsonrpc":"2.0","id":"1","method":"x","_bridge":{"responsePath":"responses/req1.json"}}`))

	srv, _ := newTestRelayServer(t, store, gw.URL)

	req := httptest.NewRequest(http.MethodPost, "/poll", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := store.Get(context.Background(), "responses/req1.json"); err != nil {
		t.Fatalf("forced poll did not relay the request: %v", err)
	}

	var body struct {
		Status string   `json:"status"`
		Stats  Snapshot `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Stats.RequestsProcessed != 1 {
		t.Fatalf("stats = %+v", body.Stats)
	}
}

func TestForcedPollReportsListFailure(t *testing.T) {
	srv, _ := newTestRelayServer(t, failingListStore{}, "http://gw/mcp")

	req := httptest.NewRequest(http.MethodPost, "/poll", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "error" || body.Error == "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestSnapshotOmitsUnsetTimestamps(t *testing.T) {
	stats := NewStats()
	snap := stats.Snapshot()
	if snap.LastPoll != "" || snap.LastRequest != "" {
		t.Fatalf("fresh snapshot = %+v", snap)
	}

	stats.RecordRequest()
	snap = stats.Snapshot()
	if snap.LastRequest == "" || snap.RequestsProcessed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Errors != 0 {
		t.Fatalf("errors = %d", snap.Errors)
	}
}
