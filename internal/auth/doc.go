// Package auth verifies bearer tokens issued by Microsoft Entra ID or
// Keycloak and exposes their claims to the MCP middleware chain.
//
// The HTTP transport wraps the MCP endpoint with Verifier.RequireBearer.
// Verified claims are stored in the request context, where ContextClaims
// reads them for middleware.AuthStage. Unauthenticated requests receive a
// 401 whose WWW-Authenticate header points to the protected resource
// metadata served by ServeProtectedResourceMetadata (RFC 9728).
//
// Dynamic client registration (RFC 7591) is backed by the key-value store in
// the "oauth-clients" collection, see ClientRegistry.
package auth
