package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/expenses-mcp/internal/middleware"
)

type contextKey string

const claimsContextKey contextKey = "verified_claims"

// WithClaims returns a context carrying verified token claims.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the verified claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	return claims, ok && claims != nil
}

// ContextClaims reads verified claims from the request context.
type ContextClaims struct{}

var _ middleware.ClaimsSource = ContextClaims{}

// Claims implements middleware.ClaimsSource.
func (ContextClaims) Claims(ctx context.Context) (map[string]any, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, false
	}
	return claims, true
}
