package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codex-agent/codexd/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// identity is the authenticated principal for one request. A nil record
// marks the bootstrap token from the environment, which grants everything.
type identity struct {
	record *auth.Record
}

func (id *identity) allows(scope string) bool {
	if id.record == nil {
		return true
	}
	return auth.HasPermission(id.record, scope)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		wire := header[7:]

		// The environment token bootstraps deployments with no minted
		// tokens yet.
		if s.cfg.Token != "" &&
			subtle.ConstantTimeCompare([]byte(wire), []byte(s.cfg.Token)) == 1 {
			ctx := context.WithValue(r.Context(), identityKey, &identity{})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		rec, err := s.tokens.Verify(wire)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, &identity{record: rec})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require gates a route on one permission scope.
func (s *Server) require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := r.Context().Value(identityKey).(*identity)
			if id == nil || !id.allows(scope) {
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recovererMiddleware converts handler panics into a 500 with the message,
// never the stack.
func recovererMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
					writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
