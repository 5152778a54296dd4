// Package bridge exposes the HTTP front end over session-scoped MCP
// subprocess calls.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railbridge/railbridge/internal/jsonrpc"
	"github.com/railbridge/railbridge/internal/mcp"
	"github.com/railbridge/railbridge/internal/metrics"
)

// mcpProtocolVersion is the MCP revision the bridge negotiates during
// initialize.
const mcpProtocolVersion = "2024-11-05"

// defaultSessionID backs requests that omit a session id; they all share
// one subprocess.
const defaultSessionID = "default"

// Caller is one live MCP session as the HTTP layer sees it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error)
	Notify(method string, params any) error
}

// SessionSource resolves session ids to live sessions, creating them lazily.
type SessionSource interface {
	GetOrCreate(sessionID string) (Caller, error)
	Count() int
}

// Server is the bridge HTTP API.
type Server struct {
	sessions        SessionSource
	logger          *slog.Logger
	authToken       string
	railwayTokenSet bool
	version         string
	startTime       time.Time
	mux             *chi.Mux
}

// NewServer builds the bridge router.
func NewServer(sessions SessionSource, authToken string, railwayTokenSet bool, version string, logger *slog.Logger) *Server {
	s := &Server{
		sessions:        sessions,
		logger:          logger.With("component", "api"),
		authToken:       authToken,
		railwayTokenSet: railwayTokenSet,
		version:         version,
		startTime:       time.Now(),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)

	// Unauthenticated operational routes.
	mux.Get("/health", s.handleHealth)
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	mux.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/mcp/initialize", s.handleInitialize)
		r.Get("/mcp/tools", s.handleListTools)
		r.Post("/mcp/tools/call", s.handleCallTool)
		r.Get("/mcp/sse", s.handleSSE)
		r.Get("/mcp/ws", s.handleWS)

		// Convenience routes: fixed tools/call invocations.
		r.Get("/railway/projects", s.handleRailwayProjects)
		r.Post("/railway/deploy", s.handleRailwayDeploy)
		r.Get("/railway/logs/{deploymentID}", s.handleRailwayLogs)
	})

	s.mux = mux
	metrics.RegisterSessionGauge(sessions.Count)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// --- MCP handlers ---

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("initialize").Inc()

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if r.Body != nil {
		// An empty body is fine: a session id is minted.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, err := s.sessions.GetOrCreate(sessionID)
	if err != nil {
		s.logger.Error("failed to create session", "session_id", sessionID, "error", err)
		s.writeRPCError(w, http.StatusInternalServerError, nil, jsonrpc.CodeInternalError, "failed to start MCP session")
		return
	}

	resp, err := sess.Call(r.Context(), "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "railbridge", "version": s.version},
	})
	if err != nil {
		s.writeCallError(w, nil, err)
		return
	}
	if resp.Error == nil {
		if err := sess.Notify("notifications/initialized", nil); err != nil {
			s.logger.Warn("initialized notification failed", "session_id", sessionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"result":    resp.Result,
		"error":     resp.Error,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("tools_list").Inc()
	sessionID := r.URL.Query().Get("sessionId")
	s.callAndReply(w, r, sessionID, "tools/list", nil)
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("tools_call").Inc()

	var req struct {
		SessionID string          `json:"sessionId"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, "tool name is required")
		return
	}
	s.callTool(w, r, req.SessionID, req.Name, req.Arguments)
}

// --- Railway convenience handlers ---

func (s *Server) handleRailwayProjects(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("railway_projects").Inc()
	sessionID := r.URL.Query().Get("sessionId")
	s.callTool(w, r, sessionID, "project_list", map[string]any{})
}

func (s *Server) handleRailwayDeploy(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("railway_deploy").Inc()

	var req struct {
		SessionID     string `json:"sessionId"`
		ProjectID     string `json:"projectId"`
		ServiceID     string `json:"serviceId"`
		EnvironmentID string `json:"environmentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, "invalid request body")
		return
	}

	args := map[string]any{
		"projectId": req.ProjectID,
		"serviceId": req.ServiceID,
	}
	if req.EnvironmentID != "" {
		args["environmentId"] = req.EnvironmentID
	}
	s.callTool(w, r, req.SessionID, "deployment_trigger", args)
}

func (s *Server) handleRailwayLogs(w http.ResponseWriter, r *http.Request) {
	metrics.BridgeRequests.WithLabelValues("railway_logs").Inc()
	sessionID := r.URL.Query().Get("sessionId")
	args := map[string]any{"deploymentId": chi.URLParam(r, "deploymentID")}
	s.callTool(w, r, sessionID, "deployment_logs", args)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"sessions":          s.sessions.Count(),
		"railway_token_set": s.railwayTokenSet,
	})
}

// --- Call plumbing ---

// callTool wraps name/arguments into a tools/call invocation.
func (s *Server) callTool(w http.ResponseWriter, r *http.Request, sessionID, name string, arguments any) {
	s.callAndReply(w, r, sessionID, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
}

// callAndReply resolves the session, issues one call, and writes the
// subprocess's JSON-RPC response verbatim. Local failures become
// synthesized JSON-RPC error envelopes; raw internals never leak.
func (s *Server) callAndReply(w http.ResponseWriter, r *http.Request, sessionID, method string, params any) {
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	sess, err := s.sessions.GetOrCreate(sessionID)
	if err != nil {
		s.logger.Error("failed to create session", "session_id", sessionID, "error", err)
		s.writeRPCError(w, http.StatusInternalServerError, nil, jsonrpc.CodeInternalError, "failed to start MCP session")
		return
	}

	resp, err := sess.Call(r.Context(), method, params)
	if err != nil {
		s.writeCallError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCallError converts a local call failure into the matching JSON-RPC
// error envelope.
func (s *Server) writeCallError(w http.ResponseWriter, id any, err error) {
	switch {
	case errors.Is(err, mcp.ErrTimeout):
		metrics.BridgeCallErrors.WithLabelValues("timeout").Inc()
		s.writeRPCError(w, http.StatusGatewayTimeout, id, jsonrpc.CodeTimeout, "MCP call timed out")
	case errors.Is(err, mcp.ErrProcessTerminated):
		metrics.BridgeCallErrors.WithLabelValues("process_terminated").Inc()
		s.writeRPCError(w, http.StatusBadGateway, id, jsonrpc.CodeProcessExited, "MCP server process terminated")
	default:
		metrics.BridgeCallErrors.WithLabelValues("internal").Inc()
		s.logger.Error("mcp call failed", "error", err)
		s.writeRPCError(w, http.StatusInternalServerError, id, jsonrpc.CodeInternalError, "internal error")
	}
}

func (s *Server) writeRPCError(w http.ResponseWriter, status int, id any, code int, message string) {
	writeJSON(w, status, jsonrpc.ErrorResponse(id, code, message))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
