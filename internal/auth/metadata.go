package auth

import (
	"encoding/json"
	"net/http"
)

// MetadataPath is the well-known path of the protected resource metadata.
const MetadataPath = "/.well-known/oauth-protected-resource"

// ProtectedResourceMetadata is the RFC 9728 document describing this server.
type ProtectedResourceMetadata struct {
	// Resource is the identifier for the protected resource
	Resource string `json:"resource"`

	// AuthorizationServers lists the issuers whose tokens are accepted
	AuthorizationServers []string `json:"authorization_servers"`

	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// Metadata returns the protected resource metadata for config.
func Metadata(config Config) ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               config.ResourceURL,
		AuthorizationServers:   []string{config.AuthorizationServer()},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        config.Scopes(),
		ResourceName:           "Expenses Tracker",
	}
}

// ServeProtectedResourceMetadata serves the metadata MCP clients fetch after
// a 401 to discover the authorization server.
func (v *Verifier) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(Metadata(v.config)); err != nil {
		v.logger.Error("Failed to encode metadata", "error", err)
	}
}

// setSecurityHeaders sets security headers on HTTP responses
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
