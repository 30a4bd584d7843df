package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported identity providers.
const (
	ProviderEntra    = "entra"
	ProviderKeycloak = "keycloak"
	ProviderNone     = "none"
)

const (
	// EntraRequiredScope must be granted to Entra tokens.
	EntraRequiredScope = "mcp-access"
	// DefaultKeycloakAudience is expected in Keycloak tokens unless configured.
	DefaultKeycloakAudience = "mcp-server"

	entraLoginHost = "https://login.microsoftonline.com"
)

// Config selects and describes the identity provider.
type Config struct {
	// Provider is entra, keycloak or none. "entra_proxy" is accepted as an
	// alias for entra.
	Provider string

	// Entra ID
	TenantID string
	ClientID string

	// Keycloak
	RealmURL    string
	TokenIssuer string
	Audience    string

	// RequiredScopes must all be present in the scp or scope claim.
	// Entra defaults to mcp-access.
	RequiredScopes []string

	// ResourceURL is the public base URL of this server.
	ResourceURL string
}

// NormalizeProvider maps provider aliases to their canonical name.
func NormalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "", ProviderNone:
		return ProviderNone
	case "entra_proxy", "entra_id", "azure":
		return ProviderEntra
	default:
		return p
	}
}

// Enabled reports whether a provider is configured.
func (c Config) Enabled() bool {
	return NormalizeProvider(c.Provider) != ProviderNone
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch NormalizeProvider(c.Provider) {
	case ProviderNone:
		return nil
	case ProviderEntra:
		if c.TenantID == "" {
			return fmt.Errorf("entra: tenant ID is required (AZURE_TENANT_ID)")
		}
		if c.ClientID == "" {
			return fmt.Errorf("entra: client ID is required (ENTRA_PROXY_AZURE_CLIENT_ID)")
		}
	case ProviderKeycloak:
		if c.RealmURL == "" {
			return fmt.Errorf("keycloak: realm URL is required (KEYCLOAK_REALM_URL)")
		}
		if _, err := url.ParseRequestURI(c.RealmURL); err != nil {
			return fmt.Errorf("keycloak: invalid realm URL: %w", err)
		}
	default:
		return fmt.Errorf("unsupported auth provider %q (must be entra, keycloak or none)", c.Provider)
	}
	if c.ResourceURL == "" {
		return fmt.Errorf("resource URL is required when authentication is enabled")
	}
	return nil
}

// JWKSURL returns the endpoint serving the provider's signing keys.
func (c Config) JWKSURL() string {
	switch NormalizeProvider(c.Provider) {
	case ProviderEntra:
		return fmt.Sprintf("%s/%s/discovery/v2.0/keys", entraLoginHost, c.TenantID)
	case ProviderKeycloak:
		return strings.TrimRight(c.RealmURL, "/") + "/protocol/openid-connect/certs"
	}
	return ""
}

// Issuer returns the expected iss claim.
func (c Config) Issuer() string {
	switch NormalizeProvider(c.Provider) {
	case ProviderEntra:
		return fmt.Sprintf("%s/%s/v2.0", entraLoginHost, c.TenantID)
	case ProviderKeycloak:
		if c.TokenIssuer != "" {
			return c.TokenIssuer
		}
		return c.RealmURL
	}
	return ""
}

// ExpectedAudience returns the expected aud claim.
func (c Config) ExpectedAudience() string {
	switch NormalizeProvider(c.Provider) {
	case ProviderEntra:
		if c.Audience != "" {
			return c.Audience
		}
		return c.ClientID
	case ProviderKeycloak:
		if c.Audience != "" {
			return c.Audience
		}
		return DefaultKeycloakAudience
	}
	return ""
}

// AuthorizationServer returns the issuer advertised in the protected
// resource metadata.
func (c Config) AuthorizationServer() string {
	switch NormalizeProvider(c.Provider) {
	case ProviderEntra:
		return c.Issuer()
	case ProviderKeycloak:
		return c.RealmURL
	}
	return ""
}

// Scopes returns the scopes every token must carry.
func (c Config) Scopes() []string {
	if len(c.RequiredScopes) > 0 {
		return c.RequiredScopes
	}
	if NormalizeProvider(c.Provider) == ProviderEntra {
		return []string{EntraRequiredScope}
	}
	return nil
}

// MetadataURL returns the protected resource metadata URL for ResourceURL.
func (c Config) MetadataURL() string {
	u, err := url.Parse(c.ResourceURL)
	if err != nil || u.Host == "" {
		return MetadataPath
	}
	return u.Scheme + "://" + u.Host + MetadataPath
}
