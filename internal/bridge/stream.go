package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// keepAliveInterval paces SSE comments and WebSocket pings.
	keepAliveInterval = 15 * time.Second
	// wsPongWait is the maximum time to wait for a pong from the client.
	wsPongWait = 60 * time.Second
)

// handleSSE holds an event stream open for future push notifications. Today
// it emits a connection-established event and periodic keep-alive markers,
// and releases its timer as soon as the client disconnects.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	event, _ := json.Marshal(map[string]string{"type": "connection_established"})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", event)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS is the WebSocket variant of the keep-alive channel. Auth already
// ran in the middleware chain.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	var writeMu sync.Mutex
	writeMu.Lock()
	err = conn.WriteJSON(map[string]string{"type": "connection_established"})
	writeMu.Unlock()
	if err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	// Drain until the client goes away; inbound frames carry no meaning yet.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
