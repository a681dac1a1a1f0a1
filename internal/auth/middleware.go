package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// SessionCookieName carries the session token for browser clients.
const SessionCookieName = "hermes_session"

type contextKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFrom returns the user id stored by RequireSession.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKey{}).(int64)
	return id, ok && id > 0
}

// TokenFromRequest reads the session cookie, falling back to an
// Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

// RequireSession rejects requests without a valid session by calling deny,
// and otherwise stores the user id in the request context.
func RequireSession(sessions SessionStore, deny func(http.ResponseWriter, *http.Request, error), logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				deny(w, r, ErrSessionNotFound)
				return
			}
			userID, err := sessions.Lookup(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrSessionNotFound) {
					logger.Error().Err(err).Msg("Session lookup failed")
				}
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
