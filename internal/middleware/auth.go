package middleware

import (
	"context"
	"log/slog"
)

// Claim names used to identify a user, in order of preference.
// Entra ID tokens carry oid; Keycloak tokens only carry sub.
const (
	ClaimObjectID = "oid"
	ClaimSubject  = "sub"
)

// ClaimsSource exposes the verified token claims of the current request.
type ClaimsSource interface {
	// Claims returns the claims, or false when the request carries no
	// verified token.
	Claims(ctx context.Context) (map[string]any, bool)
}

// ClaimsSourceFunc adapts a function to ClaimsSource.
type ClaimsSourceFunc func(ctx context.Context) (map[string]any, bool)

// Claims implements ClaimsSource.
func (f ClaimsSourceFunc) Claims(ctx context.Context) (map[string]any, bool) {
	return f(ctx)
}

// ResolveUserID returns the oid claim, else the sub claim, else "".
// Empty and non-string claims count as missing.
func ResolveUserID(claims map[string]any) string {
	for _, name := range []string{ClaimObjectID, ClaimSubject} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// AuthStage publishes the caller's identity under StateUserID.
// Unauthenticated requests pass through without a user_id.
type AuthStage struct {
	source ClaimsSource
	logger *slog.Logger
}

// NewAuthStage creates an auth stage reading claims from source.
func NewAuthStage(source ClaimsSource, logger *slog.Logger) *AuthStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthStage{source: source, logger: logger}
}

// Handle implements Stage.
func (s *AuthStage) Handle(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	if s.source != nil {
		if claims, ok := s.source.Claims(ctx); ok {
			if userID := ResolveUserID(claims); userID != "" {
				inv.SetState(StateUserID, userID)
			} else {
				s.logger.DebugContext(ctx, "Token has neither oid nor sub claim",
					slog.String("kind", string(inv.Kind)),
					slog.String("target", inv.Target))
			}
		}
	}
	return next(ctx, inv)
}
