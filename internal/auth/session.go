package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/giantswarm/mcp-oauth/storage"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/teemow/expenses-mcp/internal/middleware"
)

// SessionRecorder keeps the latest verified token per user in an mcp-oauth
// TokenStore. Only a fingerprint of the access token is stored.
type SessionRecorder struct {
	store storage.TokenStore
}

// NewSessionRecorder creates a recorder on top of an mcp-oauth TokenStore.
func NewSessionRecorder(store storage.TokenStore) *SessionRecorder {
	return &SessionRecorder{
		store: store,
	}
}

// Record saves the session for the user identified by claims. Tokens
// without oid or sub are ignored.
func (r *SessionRecorder) Record(ctx context.Context, claims jwt.MapClaims, rawToken string) error {
	userID := middleware.ResolveUserID(claims)
	if userID == "" {
		return nil
	}

	token := &oauth2.Token{
		AccessToken: TokenFingerprint(rawToken),
		TokenType:   "Bearer",
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		token.Expiry = exp.Time
	}

	if err := r.store.SaveToken(ctx, userID, token); err != nil {
		return fmt.Errorf("failed to save session for %s: %w", userID, err)
	}
	return nil
}

// Session returns the recorded token for userID.
func (r *SessionRecorder) Session(ctx context.Context, userID string) (*oauth2.Token, error) {
	return r.store.GetToken(ctx, userID)
}

// TokenFingerprint returns a short non-reversible identifier for a token.
func TokenFingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "sha256:" + hex.EncodeToString(sum[:12])
}
