package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
)

// DefaultLeeway tolerates clock skew when checking exp and nbf.
const DefaultLeeway = 30 * time.Second

// ErrMissingScope is returned when a token lacks a required scope.
var ErrMissingScope = errors.New("token is missing a required scope")

// KeyProvider resolves token signing keys.
type KeyProvider interface {
	Keyfunc(ctx context.Context) jwt.Keyfunc
}

// Verifier validates RS256 bearer tokens against a provider's JWKS.
type Verifier struct {
	config   Config
	keys     KeyProvider
	client   *http.Client
	owned    *KeySet
	parser   *jwt.Parser
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	sessions *SessionRecorder
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithKeyProvider replaces the JWKS key set, e.g. with static test keys.
func WithKeyProvider(keys KeyProvider) VerifierOption {
	return func(v *Verifier) {
		v.keys = keys
	}
}

// WithVerifierMetrics records verification outcomes.
func WithVerifierMetrics(m *instrumentation.Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSessionRecorder records every verified token.
func WithSessionRecorder(r *SessionRecorder) VerifierOption {
	return func(v *Verifier) {
		v.sessions = r
	}
}

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(client *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.client = client
	}
}

// NewVerifier creates a verifier for config. The provider must not be none.
func NewVerifier(config Config, opts ...VerifierOption) (*Verifier, error) {
	if !config.Enabled() {
		return nil, fmt.Errorf("no authentication provider configured")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	v := &Verifier{
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.keys == nil {
		ks, err := NewKeySet(config.JWKSURL(), v.client, v.logger)
		if err != nil {
			return nil, err
		}
		v.keys = ks
		v.owned = ks
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(config.Issuer()),
		jwt.WithAudience(config.ExpectedAudience()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(DefaultLeeway),
	)
	return v, nil
}

// Close stops the JWKS refresh started by NewVerifier. Key providers passed
// with WithKeyProvider are left alone.
func (v *Verifier) Close() error {
	if v.owned == nil {
		return nil
	}
	return v.owned.Close()
}

// Config returns the verifier configuration.
func (v *Verifier) Config() Config {
	return v.config
}

// Verify validates raw and returns its claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	provider := NormalizeProvider(v.config.Provider)

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		v.metrics.RecordAuthVerification(ctx, provider, "invalid")
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	granted := grantedScopes(claims)
	for _, scope := range v.config.Scopes() {
		if !granted[scope] {
			v.metrics.RecordAuthVerification(ctx, provider, "insufficient_scope")
			return nil, fmt.Errorf("%w: %s", ErrMissingScope, scope)
		}
	}

	v.metrics.RecordAuthVerification(ctx, provider, "valid")
	return claims, nil
}

// grantedScopes merges the space-separated scp (Entra) and scope (Keycloak)
// claims.
func grantedScopes(claims jwt.MapClaims) map[string]bool {
	granted := make(map[string]bool)
	for _, name := range []string{"scp", "scope"} {
		s, ok := claims[name].(string)
		if !ok {
			continue
		}
		for _, scope := range strings.Fields(s) {
			granted[scope] = true
		}
	}
	return granted
}
