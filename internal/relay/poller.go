// Package relay drains a shared object-storage mailbox: pending request
// objects are forwarded to the MCP gateway, the response is written to the
// request's designated response path, and only then is the request deleted.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/railbridge/railbridge/internal/jsonrpc"
	"github.com/railbridge/railbridge/internal/storage"
)

// metadataKey is the out-of-band routing block attached to every mailbox
// request object. It is stripped before forwarding.
const metadataKey = "_bridge"

// maxGatewayResponseBytes bounds what the relay will buffer from the
// gateway before writing it back to storage.
const maxGatewayResponseBytes = 10 * 1024 * 1024

// routingMeta is the routing metadata carried under metadataKey.
type routingMeta struct {
	ID           string `json:"id,omitempty"`
	ResponsePath string `json:"responsePath"`
}

// Poller drains the mailbox on a fixed interval.
type Poller struct {
	store        storage.ObjectStore
	gatewayURL   string
	gatewayToken string
	prefix       string
	suffix       string
	client       *http.Client
	stats        *Stats
	logger       *slog.Logger
}

// NewPoller wires a poller against a store and a downstream gateway.
func NewPoller(store storage.ObjectStore, gatewayURL, gatewayToken, prefix, suffix string, httpTimeout time.Duration, stats *Stats, logger *slog.Logger) *Poller {
	return &Poller{
		store:        store,
		gatewayURL:   gatewayURL,
		gatewayToken: gatewayToken,
		prefix:       prefix,
		suffix:       suffix,
		client:       &http.Client{Timeout: httpTimeout},
		stats:        stats,
		logger:       logger.With("component", "poller"),
	}
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("poll cycle failed", "error", err)
			}
		}
	}
}

// Poll runs one cycle: list the requests prefix and process every matching
// object. Objects are processed concurrently and independently; one failure
// never aborts the others.
func (p *Poller) Poll(ctx context.Context) error {
	p.stats.RecordPoll()

	keys, err := p.store.List(ctx, p.prefix)
	if err != nil {
		p.stats.RecordError()
		return fmt.Errorf("list mailbox: %w", err)
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		if !strings.HasSuffix(key, p.suffix) {
			continue
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := p.process(ctx, key); err != nil {
				p.stats.RecordError()
				p.logger.Error("failed to process mailbox request", "key", key, "error", err)
			}
		}(key)
	}
	wg.Wait()
	return nil
}

// process carries one request object to completion. The delete of the
// request is the commit point: it happens only after the response write
// succeeded, so a crash in between re-delivers (idempotently overwriting
// the same response path) rather than dropping the request.
func (p *Poller) process(ctx context.Context, key string) error {
	data, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted by a concurrent cycle; nothing to do.
			return nil
		}
		return fmt.Errorf("download request: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		// Not JSON: no response path can exist, so the object is
		// unroutable. Discard rather than retry forever.
		p.logger.Warn("discarding malformed mailbox object", "key", key, "error", err)
		_ = p.store.Delete(ctx, key)
		return fmt.Errorf("malformed request object: %w", err)
	}

	var meta routingMeta
	if raw, ok := obj[metadataKey]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			p.logger.Warn("discarding mailbox object with bad routing metadata", "key", key, "error", err)
		}
	}
	if meta.ResponsePath == "" {
		_ = p.store.Delete(ctx, key)
		return fmt.Errorf("request %s has no response path", key)
	}

	// Strip routing metadata; the gateway sees the bare JSON-RPC request.
	delete(obj, metadataKey)
	payload, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("re-encode request: %w", err)
	}

	result := p.forward(ctx, payload, requestID(obj))

	if err := p.store.Put(ctx, meta.ResponsePath, result); err != nil {
		// Request stays in the mailbox and is retried next tick.
		return fmt.Errorf("write response to %s: %w", meta.ResponsePath, err)
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete processed request: %w", err)
	}

	p.stats.RecordRequest()
	p.logger.Info("relayed mailbox request", "key", key, "response_path", meta.ResponsePath)
	return nil
}

// forward posts the payload to the gateway and returns either its JSON
// response or a synthesized error envelope. Forwarding failures are
// captured, never thrown: the requester observes a structured failure.
func (p *Poller) forward(ctx context.Context, payload []byte, id any) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return p.gatewayError(id, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if p.gatewayToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.gatewayToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.gatewayError(id, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return p.gatewayError(id, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.gatewayError(id, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}
	if !json.Valid(body) {
		return p.gatewayError(id, "gateway returned invalid JSON")
	}
	return body
}

func (p *Poller) gatewayError(id any, detail string) []byte {
	env := jsonrpc.ErrorResponse(id, jsonrpc.CodeGatewayError, "MCP Gateway error: "+detail)
	data, err := json.Marshal(env)
	if err != nil {
		// Marshaling a flat envelope cannot realistically fail; keep the
		// contract anyway.
		p.logger.Error("failed to encode error envelope", "error", err)
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"MCP Gateway error"}}`)
	}
	return data
}

// requestID extracts the JSON-RPC id so error envelopes correlate.
func requestID(obj map[string]json.RawMessage) any {
	raw, ok := obj["id"]
	if !ok {
		return nil
	}
	var id any
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
