package handlers

import (
	"net/http"

	"github.com/formflow/api/internal/platform/httpx"
	"github.com/formflow/api/internal/platform/requestctx"
	"github.com/formflow/api/internal/platform/session"
)

// SessionMiddleware resolves the wizard session from the signed cookie, issuing
// a fresh session when the cookie is missing or invalid. The session id is
// stored on the request context for handlers and loggers.
func SessionMiddleware(manager *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if manager == nil {
				httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session manager unavailable", http.StatusServiceUnavailable))
				return
			}

			sessionID, err := manager.FromRequest(r)
			if err != nil {
				sessionID = manager.NewSessionID()
				if err := manager.WriteCookie(w, sessionID); err != nil {
					httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "failed to establish session", http.StatusServiceUnavailable))
					return
				}
			}

			ctx = requestctx.WithSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
