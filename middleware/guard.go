package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenguard"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*tokenguard.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*tokenguard.Claims)
	return c, ok && c != nil
}

// WithClaims stores c in ctx. Guards call it after a successful validation.
func WithClaims(ctx context.Context, c *tokenguard.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// Validator is the subset of *tokenguard.Engine used by the guards.
type Validator interface {
	Validate(ctx context.Context, token string, expected tokenguard.TokenType) (*tokenguard.Claims, error)
}

// Guard rejects requests whose bearer token does not validate as expected.
// The client IP and X-Request-ID header are attached to the context for
// audit events.
func Guard(v Validator, expected tokenguard.TokenType) func(http.Handler) http.Handler {
	return guard(v, expected, nil)
}

// RequireAccess guards a route with access tokens.
func RequireAccess(v Validator) func(http.Handler) http.Handler {
	return Guard(v, tokenguard.TokenAccess)
}

// RequireService guards a route with service tokens. When services is not
// empty, the token's service name must be one of them.
func RequireService(v Validator, services ...string) func(http.Handler) http.Handler {
	if len(services) == 0 {
		return Guard(v, tokenguard.TokenService)
	}
	allowed := make(map[string]struct{}, len(services))
	for _, s := range services {
		allowed[s] = struct{}{}
	}
	return guard(v, tokenguard.TokenService, func(c *tokenguard.Claims) bool {
		_, ok := allowed[c.ServiceName]
		return ok
	})
}

func guard(v Validator, expected tokenguard.TokenType, accept func(*tokenguard.Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			ctx := tokenguard.WithClientIP(r.Context(), clientIP(r))
			if id := r.Header.Get("X-Request-ID"); id != "" {
				ctx = tokenguard.WithRequestID(ctx, id)
			}

			claims, err := v.Validate(ctx, token, expected)
			if err != nil {
				unauthorized(w)
				return
			}
			if accept != nil && !accept(claims) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// prefix must be exactly "Bearer "; "bearer x", a missing prefix or an empty
// token are malformed.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
