package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testTenant   = "11111111-2222-3333-4444-555555555555"
	testClientID = "66666666-7777-8888-9999-000000000000"
	testKid      = "test-key"
)

type testKeys struct {
	priv *rsa.PrivateKey
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &testKeys{priv: priv}
}

// Keyfunc lets testKeys stand in for a KeySet.
func (k *testKeys) Keyfunc(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return &k.priv.PublicKey, nil
	}
}

func (k *testKeys) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(k.priv)
	require.NoError(t, err)
	return signed
}

func (k *testKeys) jwks() []byte {
	pub := k.priv.PublicKey
	set := map[string]any{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": testKid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(set)
	return data
}

// jwksServer serves k's public key and counts requests.
func (k *testKeys) jwksServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(k.jwks())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func keycloakConfig(realm string) Config {
	return Config{
		Provider:    ProviderKeycloak,
		RealmURL:    realm,
		ResourceURL: "http://localhost:8000/mcp",
	}
}

func entraConfig() Config {
	return Config{
		Provider:    "entra_proxy",
		TenantID:    testTenant,
		ClientID:    testClientID,
		ResourceURL: "https://expenses.example.com",
	}
}

func validClaims(iss, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": iss,
		"aud": aud,
		"sub": "keycloak-user",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}
