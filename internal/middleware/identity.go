// Package middleware contains HTTP middleware for the quota service.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// IdentityHeader carries the authenticated user ID resolved by the
// upstream session provider. Authentication itself happens outside this
// service; an absent or malformed header is simply an anonymous caller.
const IdentityHeader = "X-Authenticated-User"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// GetIdentity retrieves the authenticated user ID from the request
// context. Returns nil for anonymous requests.
func GetIdentity(ctx context.Context) *uuid.UUID {
	id, ok := ctx.Value(identityContextKey).(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

// setIdentity stores a user ID in the request context.
func setIdentity(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityMiddleware extracts the authenticated identity from the request.
type IdentityMiddleware struct {
	logger *slog.Logger
}

// NewIdentityMiddleware creates a new IdentityMiddleware.
func NewIdentityMiddleware(logger *slog.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{logger: logger}
}

// WithIdentity returns middleware that parses the identity header into the
// request context. Requests without a valid identity continue as
// anonymous; enforcement decides what anonymous callers may do.
func (m *IdentityMiddleware) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(IdentityHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			m.logger.Warn("malformed identity header", "value", raw, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(setIdentity(r.Context(), id)))
	})
}

// Stack composes middleware so the first listed wraps outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
