package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/httpx"
	"backoffice/logging"
)

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored by Authenticate, or nil.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate bootstraps the session from the bearer token and stores it in
// the request context.
func (s *Service) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpx.WriteError(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}
		sess, err := s.Bootstrap(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		ctx := WithSession(r.Context(), sess)
		log := logging.FromContext(ctx).With(zap.Int64("user_id", sess.Profile.ID))
		next.ServeHTTP(w, r.WithContext(logging.WithContext(ctx, log)))
	})
}

// Require rejects requests whose session lacks action on resource.
func Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFrom(r.Context())
			if sess == nil {
				httpx.WriteError(w, r, apperr.Unauthorized(""))
				return
			}
			if !sess.Permissions.Can(resource, action) {
				httpx.WriteError(w, r, apperr.Forbidden("").
					WithDetails("resource", resource).
					WithDetails("action", action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard wraps a handler func with Require.
func Guard(resource Resource, action Action, h http.HandlerFunc) http.Handler {
	return Require(resource, action)(h)
}
