package bridge

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/railbridge/railbridge/internal/jsonrpc"
)

// authMiddleware enforces the configured bearer token. No token configured
// means auth is disabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeRPCError(w, http.StatusUnauthorized, nil, jsonrpc.CodeInternalError, "missing authorization header")
			return
		}
		token := header[len("Bearer "):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeRPCError(w, http.StatusUnauthorized, nil, jsonrpc.CodeInternalError, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
