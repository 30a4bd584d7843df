package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultJWKSRefreshInterval is how often the key set is reloaded in the
// background.
const DefaultJWKSRefreshInterval = time.Hour

const (
	jwksHTTPTimeout = 10 * time.Second

	// minRefetchInterval limits refetches triggered by unknown key IDs,
	// whether or not the previous fetch succeeded.
	minRefetchInterval = 30 * time.Second

	// unknownKIDWait bounds how long a lookup waits for the refetch limiter.
	// A lookup that would wait longer fails immediately.
	unknownKIDWait = 50 * time.Millisecond
)

// ErrUnknownKey is returned when no key matches the token's kid.
var ErrUnknownKey = errors.New("signing key not found in JWKS")

// KeySet caches the signing keys published at a JWKS endpoint and refreshes
// them in the background until Close.
type KeySet struct {
	url    string
	kf     keyfunc.Keyfunc
	cancel context.CancelFunc
}

// NewKeySet fetches url once and starts the refresh loop. A failed first
// fetch is logged, not returned; lookups then trigger rate-limited refetches.
// A nil client gets an otelhttp-instrumented client.
func NewKeySet(url string, client *http.Client, logger *slog.Logger) (*KeySet, error) {
	if client == nil {
		client = &http.Client{
			Timeout:   jwksHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	kf, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{url}, keyfunc.Override{
		Client:            client,
		HTTPTimeout:       jwksHTTPTimeout,
		RefreshInterval:   DefaultJWKSRefreshInterval,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(minRefetchInterval), 1),
		RateLimitWaitMax:  unknownKIDWait,
		RefreshErrorHandlerFunc: func(u string) func(context.Context, error) {
			return func(ctx context.Context, err error) {
				logger.WarnContext(ctx, "JWKS refresh failed", slog.String("url", u), slog.String("error", err.Error()))
			}
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", url, err)
	}
	return &KeySet{url: url, kf: kf, cancel: cancel}, nil
}

// Keyfunc returns a jwt.Keyfunc resolving keys by kid. Tokens without a kid
// are tried against every key in the set.
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return k.kf.KeyfuncCtx(ctx)
}

// Key returns the RSA key for kid.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	jwk, err := k.kf.Storage().KeyRead(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownKey, kid, err)
	}
	pub, ok := jwk.Key().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %q is %T, not RSA", kid, jwk.Key())
	}
	return pub, nil
}

// Close stops the background refresh.
func (k *KeySet) Close() error {
	k.cancel()
	return nil
}
