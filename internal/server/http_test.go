package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/kvstore"
	"github.com/teemow/expenses-mcp/internal/middleware"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid HTTPS URL",
			baseURL: "https://mcp.example.com",
			wantErr: false,
		},
		{
			name:    "valid HTTP localhost",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP 127.0.0.1",
			baseURL: "http://127.0.0.1:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP ::1 (IPv6 loopback)",
			baseURL: "http://[::1]:8080",
			wantErr: false,
		},
		{
			name:    "invalid HTTP non-localhost",
			baseURL: "http://mcp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with localhost substring",
			baseURL: "http://localhost.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with 127.0.0.1 in domain",
			baseURL: "http://127.0.0.1.example.com",
			wantErr: true,
		},
		{
			name:    "empty URL",
			baseURL: "",
			wantErr: true,
		},
		{
			name:    "invalid URL format",
			baseURL: "not a url",
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			baseURL: "ftp://example.com",
			wantErr: true,
		},
		{
			name:    "HTTPS with path",
			baseURL: "https://mcp.example.com/api",
			wantErr: false,
		},
		{
			name:    "HTTPS with port",
			baseURL: "https://mcp.example.com:8443",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

const testRealm = "https://kc.example.com/realms/expenses"

type staticKey struct {
	key *rsa.PrivateKey
}

func (k staticKey) Keyfunc(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return &k.key.PublicKey, nil
	}
}

func (k staticKey) token(t *testing.T) string {
	t.Helper()
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": testRealm,
		"aud": auth.DefaultKeycloakAudience,
		"sub": "user-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString(k.key)
	require.NoError(t, err)
	return signed
}

func newTestHTTPServer(t *testing.T) (*HTTPServer, staticKey) {
	t.Helper()
	return newTestHTTPServerFor(t, mcpserver.NewMCPServer("expenses-test", "0.0.0"))
}

func newTestHTTPServerFor(t *testing.T, mcpSrv *mcpserver.MCPServer) (*HTTPServer, staticKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := staticKey{key: key}

	verifier, err := auth.NewVerifier(auth.Config{
		Provider:    auth.ProviderKeycloak,
		RealmURL:    testRealm,
		ResourceURL: "http://localhost:8000/mcp",
	}, auth.WithKeyProvider(keys))
	require.NoError(t, err)

	backend := kvstore.NewMemoryBackend()
	t.Cleanup(func() { _ = backend.Close() })
	registry := auth.NewClientRegistry(kvstore.New(backend), auth.RegistryConfig{AllowPublicRegistration: true}, nil, nil)

	srv, err := NewHTTPServer(mcpSrv, HTTPServerConfig{
		BaseURL:     "http://localhost:8000",
		Verifier:    verifier,
		Registry:    registry,
		RateLimiter: auth.NewRateLimiter(100, 100, false),
		Health:      NewHealthChecker(nil),
	})
	require.NoError(t, err)
	return srv, keys
}

func TestNewHTTPServer_RequiresVerifier(t *testing.T) {
	_, err := NewHTTPServer(mcpserver.NewMCPServer("x", "0"), HTTPServerConfig{BaseURL: "http://localhost:8000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication provider is required")
}

func TestHTTPServer_Health(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body ServiceHealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ServiceHealthResponse{Status: "healthy", Service: "mcp-server"}, body)
}

func TestHTTPServer_MetadataAndRegistration(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + auth.MetadataPath)
	require.NoError(t, err)
	var metadata auth.ProtectedResourceMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metadata))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{testRealm}, metadata.AuthorizationServers)

	body := `{"client_name":"cli","redirect_uris":["http://localhost:3000/callback"],"token_endpoint_auth_method":"none"}`
	resp, err = http.Post(ts.URL+auth.RegistrationPath, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHTTPServer_MCPRequiresBearer(t *testing.T) {
	srv, keys := newTestHTTPServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`

	resp, err := http.Post(ts.URL+MCPEndpointPath, "application/json", strings.NewReader(initialize))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "resource_metadata=")

	req, err := http.NewRequest(http.MethodPost, ts.URL+MCPEndpointPath, strings.NewReader(initialize))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+keys.token(t))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// postMCP sends one JSON-RPC message and returns the decoded response,
// reading it from an SSE frame when the transport chose to stream.
func postMCP(t *testing.T, url, token, sessionID, body string) (map[string]any, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		for _, line := range strings.Split(string(data), "\n") {
			if payload, ok := strings.CutPrefix(line, "data: "); ok {
				data = []byte(payload)
			}
		}
	}

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg), string(data))
	return msg, resp.Header.Get("Mcp-Session-Id")
}

func TestHTTPServer_BearerClaimsReachTool(t *testing.T) {
	chain := middleware.NewChain(middleware.NewAuthStage(auth.ContextClaims{}, nil))
	mcpSrv := mcpserver.NewMCPServer("expenses-test", "0.0.0", mcpserver.WithToolCapabilities(false))
	mcpSrv.AddTool(mcp.NewTool("whoami"), middleware.WrapTool(chain,
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("uid=" + middleware.UserID(ctx)), nil
		}))

	srv, keys := newTestHTTPServerFor(t, mcpSrv)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	token := keys.token(t)
	endpoint := ts.URL + MCPEndpointPath

	initialized, sessionID := postMCP(t, endpoint, token, "",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`)
	require.Contains(t, initialized, "result")

	called, _ := postMCP(t, endpoint, token, sessionID,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"whoami","arguments":{}}}`)
	result, ok := called["result"].(map[string]any)
	require.True(t, ok, "tools/call returned %v", called)
	assert.NotEqual(t, true, result["isError"])

	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	assert.Equal(t, "uid=user-123", content[0].(map[string]any)["text"])
}

func TestHTTPServer_ClientConfigurationRoute(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{"client_name":"cli","redirect_uris":["http://localhost:3000/callback"],"token_endpoint_auth_method":"none"}`
	resp, err := http.Post(ts.URL+auth.RegistrationPath, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var registered auth.ClientRegistrationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+auth.RegistrationPath+"/"+registered.ClientID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+registered.RegistrationAccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var info auth.ClientRegistrationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cli", info.ClientName)
}

func TestStatusRecorder(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &statusRecorder{ResponseWriter: recorder, status: http.StatusOK}

		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusOK)

		if rw.status != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rw.status, http.StatusNotFound)
		}
		if recorder.Code != http.StatusNotFound {
			t.Errorf("recorder.Code = %d, want %d", recorder.Code, http.StatusNotFound)
		}
	})

	t.Run("flush passes through", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := &statusRecorder{ResponseWriter: recorder, status: http.StatusOK}
		rw.Flush()
		if !recorder.Flushed {
			t.Error("expected underlying writer to be flushed")
		}
	})
}
