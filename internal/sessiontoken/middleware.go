package sessiontoken

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const contextKeyClaims contextKey = "sessiontoken.claims"

// WithClaims stores verified claims in context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// ClaimsFromContext extracts verified claims from context.
func ClaimsFromContext(ctx context.Context) *Claims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(contextKeyClaims).(*Claims)
	return claims
}

// Middleware requires a handle matching the session addressed by the path.
type Middleware struct {
	issuer *Issuer
	prefix string
}

// NewMiddleware constructs a middleware guarding paths below prefix.
func NewMiddleware(issuer *Issuer, prefix string) *Middleware {
	return &Middleware{issuer: issuer, prefix: strings.TrimRight(prefix, "/") + "/"}
}

// Wrap applies handle checks to the handler. A disabled issuer lets every request through.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil || !m.issuer.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := m.sessionID(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.issuer.Parse(extractBearer(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.SessionID != sessionID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *Middleware) sessionID(path string) (string, bool) {
	if !strings.HasPrefix(path, m.prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, m.prefix)
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
