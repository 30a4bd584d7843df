package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"github.com/teemow/expenses-mcp/internal/kvstore"
	"github.com/teemow/expenses-mcp/internal/logging"
)

// ClientsCollection holds registered OAuth clients.
const ClientsCollection = "oauth-clients"

// RegistrationPath is where clients register. Registered clients are read
// and deleted at RegistrationPath/{client_id} (RFC 7592).
const RegistrationPath = "/oauth/register"

// ClientConfigurationPattern is the mux pattern of the client configuration
// endpoint.
const ClientConfigurationPattern = RegistrationPath + "/{client_id}"

// Token endpoint authentication methods.
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
)

var (
	// ErrClientNotFound is returned for unknown or expired client IDs.
	ErrClientNotFound = errors.New("client not found")
	// ErrInvalidClientMetadata is returned for rejected registration requests.
	ErrInvalidClientMetadata = errors.New("invalid client metadata")
	// ErrInvalidRegistrationToken is returned when a registration access
	// token does not match the client.
	ErrInvalidRegistrationToken = errors.New("invalid registration access token")
)

// DangerousSchemes are never accepted as redirect URI schemes.
var DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

// ClientRegistrationRequest is the RFC 7591 registration request subset
// accepted by the registry.
type ClientRegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRegistrationResponse is returned once on successful registration.
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	RegistrationAccessToken string   `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string   `json:"registration_client_uri,omitempty"`
}

// RegisteredClient is the stored form of a client. The client secret and
// the registration access token are kept as bcrypt hashes.
type RegisteredClient struct {
	ClientID                string   `json:"client_id"`
	ClientSecretHash        string   `json:"client_secret_hash,omitempty"`
	RegistrationTokenHash   string   `json:"registration_token_hash"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegistryConfig controls dynamic client registration.
type RegistryConfig struct {
	// AllowPublicRegistration permits registration without a token.
	AllowPublicRegistration bool
	// RegistrationToken is the bearer token required otherwise.
	RegistrationToken string
	// ClientTTL expires registrations. Zero keeps them forever.
	ClientTTL time.Duration
	// TrustProxy uses X-Forwarded-For for logging the client IP.
	TrustProxy bool
	// BaseURL builds registration_client_uri. It is omitted when empty.
	BaseURL string
}

// ClientRegistry stores OAuth clients in the key-value store.
type ClientRegistry struct {
	store   *kvstore.Store
	config  RegistryConfig
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewClientRegistry creates a registry writing to the oauth-clients
// collection of store.
func NewClientRegistry(store *kvstore.Store, config RegistryConfig, logger *slog.Logger, metrics *instrumentation.Metrics) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRegistry{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Register validates req and stores a new client.
func (cr *ClientRegistry) Register(ctx context.Context, req *ClientRegistrationRequest) (*ClientRegistrationResponse, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%w: at least one redirect_uri is required", ErrInvalidClientMetadata)
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidClientMetadata, err)
		}
	}

	// Set defaults for missing fields
	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = AuthMethodClientSecretBasic
	}
	switch authMethod {
	case AuthMethodNone, AuthMethodClientSecretBasic, AuthMethodClientSecretPost:
	default:
		return nil, fmt.Errorf("%w: unsupported token_endpoint_auth_method %q", ErrInvalidClientMetadata, authMethod)
	}
	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	now := cr.now()
	client := &RegisteredClient{
		ClientID:                uuid.NewString(),
		ClientIDIssuedAt:        now.Unix(),
		RedirectURIs:            req.RedirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		Scope:                   req.Scope,
	}
	if cr.config.ClientTTL > 0 {
		client.ClientSecretExpiresAt = now.Add(cr.config.ClientTTL).Unix()
	}

	var (
		secret string
		err    error
	)
	if authMethod != AuthMethodNone {
		secret, client.ClientSecretHash, err = newHashedToken()
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret: %w", err)
		}
	}
	regToken, regHash, err := newHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to create registration access token: %w", err)
	}
	client.RegistrationTokenHash = regHash

	value, err := toValue(client)
	if err != nil {
		return nil, err
	}
	opts := []kvstore.CallOption{kvstore.InCollection(ClientsCollection)}
	if cr.config.ClientTTL > 0 {
		opts = append(opts, kvstore.WithTTL(cr.config.ClientTTL))
	}
	if err := cr.store.Put(ctx, client.ClientID, value, opts...); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}

	cr.logger.InfoContext(ctx, "Registered new OAuth client",
		slog.String("client_id", client.ClientID),
		slog.String("client_name", client.ClientName),
		slog.String("token_endpoint_auth_method", authMethod),
		logging.Collection(ClientsCollection),
	)

	resp := cr.information(client)
	// Only returned once
	resp.ClientSecret = secret
	resp.RegistrationAccessToken = regToken
	return resp, nil
}

// information is the client's public metadata, without any credentials.
func (cr *ClientRegistry) information(client *RegisteredClient) *ClientRegistrationResponse {
	resp := &ClientRegistrationResponse{
		ClientID:                client.ClientID,
		ClientIDIssuedAt:        client.ClientIDIssuedAt,
		ClientSecretExpiresAt:   client.ClientSecretExpiresAt,
		RedirectURIs:            client.RedirectURIs,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		ClientName:              client.ClientName,
		Scope:                   client.Scope,
	}
	if cr.config.BaseURL != "" {
		resp.RegistrationClientURI = cr.config.BaseURL + RegistrationPath + "/" + url.PathEscape(client.ClientID)
	}
	return resp
}

// Get returns the client with clientID.
func (cr *ClientRegistry) Get(ctx context.Context, clientID string) (*RegisteredClient, error) {
	res := cr.store.Get(ctx, clientID, kvstore.InCollection(ClientsCollection))
	if !res.Found() {
		return nil, ErrClientNotFound
	}
	var client RegisteredClient
	if err := fromValue(res.Value, &client); err != nil {
		return nil, fmt.Errorf("failed to decode client %s: %w", clientID, err)
	}
	return &client, nil
}

// Authenticate returns the client if token is its registration access
// token. Unknown clients and wrong tokens both fail.
func (cr *ClientRegistry) Authenticate(ctx context.Context, clientID, token string) (*RegisteredClient, error) {
	client, err := cr.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.RegistrationTokenHash == "" || token == "" {
		return nil, ErrInvalidRegistrationToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.RegistrationTokenHash), []byte(token)); err != nil {
		return nil, ErrInvalidRegistrationToken
	}
	return client, nil
}

// Delete removes a client. It reports whether the client existed.
func (cr *ClientRegistry) Delete(ctx context.Context, clientID string) bool {
	return cr.store.Delete(ctx, clientID, kvstore.InCollection(ClientsCollection))
}

// ServeRegistration handles POST /oauth/register.
func (cr *ClientRegistry) ServeRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	clientIP := ClientIP(r, cr.config.TrustProxy)

	// Require a registration token unless public registration is enabled
	if !cr.config.AllowPublicRegistration {
		if cr.config.RegistrationToken == "" {
			cr.logger.ErrorContext(ctx, "Registration token not configured and public registration disabled")
			cr.metrics.RecordClientRegistration(ctx, "misconfigured")
			writeOAuthError(w, http.StatusInternalServerError, "server_error",
				"Server configuration error: registration token not configured")
			return
		}
		if token := bearerToken(r); token == "" || token != cr.config.RegistrationToken {
			cr.logger.WarnContext(ctx, "Client registration rejected: invalid registration token",
				slog.String("client_ip", clientIP))
			cr.metrics.RecordClientRegistration(ctx, "unauthorized")
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Registration access token required")
			return
		}
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		cr.metrics.RecordClientRegistration(ctx, "invalid")
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Failed to parse registration request")
		return
	}

	resp, err := cr.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, ErrInvalidClientMetadata) {
			cr.metrics.RecordClientRegistration(ctx, "invalid")
			writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
			return
		}
		cr.logger.ErrorContext(ctx, "Failed to register client", logging.Err(err))
		cr.metrics.RecordClientRegistration(ctx, instrumentation.StatusError)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Failed to register client")
		return
	}
	cr.metrics.RecordClientRegistration(ctx, instrumentation.StatusSuccess)

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeClientConfiguration handles GET and DELETE on
// RegistrationPath/{client_id}. Requests authenticate with the registration
// access token issued at registration; an unknown client gets the same 401
// as a wrong token.
func (cr *ClientRegistry) ServeClientConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		w.Header().Set("Allow", "GET, DELETE")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	clientID := r.PathValue("client_id")

	client, err := cr.Authenticate(ctx, clientID, bearerToken(r))
	if err != nil {
		if !errors.Is(err, ErrClientNotFound) && !errors.Is(err, ErrInvalidRegistrationToken) {
			cr.logger.ErrorContext(ctx, "Failed to read client", slog.String("client_id", clientID), logging.Err(err))
		}
		cr.logger.WarnContext(ctx, "Client configuration request rejected",
			slog.String("client_id", clientID),
			slog.String("client_ip", ClientIP(r, cr.config.TrustProxy)))
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Invalid client or registration access token")
		return
	}

	setSecurityHeaders(w)
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodDelete {
		cr.Delete(ctx, client.ClientID)
		cr.logger.InfoContext(ctx, "Deleted OAuth client",
			slog.String("client_id", client.ClientID),
			logging.Collection(ClientsCollection))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(cr.information(client))
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// validateRedirectURI rejects fragments, dangerous schemes and plain http
// to anything but loopback hosts.
func validateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %s", uri)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments: %s", uri)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("redirect_uri must have a scheme: %s", uri)
	}

	scheme := strings.ToLower(parsed.Scheme)
	for _, dangerous := range DangerousSchemes {
		if scheme == dangerous {
			return fmt.Errorf("redirect_uri scheme '%s' is not allowed", parsed.Scheme)
		}
	}

	switch scheme {
	case "https":
		if parsed.Host == "" {
			return fmt.Errorf("https redirect_uri must have a host: %s", uri)
		}
	case "http":
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("http redirect_uri is only allowed for loopback hosts: %s", uri)
		}
	}
	// Other schemes are native app callbacks such as vscode://
	return nil
}

// newHashedToken returns a random token and its bcrypt hash.
func newHashedToken() (token, hash string, err error) {
	token, err = generateSecureToken(48)
	if err != nil {
		return "", "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return token, string(h), nil
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func toValue(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromValue(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
