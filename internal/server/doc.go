// Package server provides the MCP server context, health endpoints, the
// metrics server and the authenticated HTTP server for expenses-mcp.
//
// # Key Components
//
// ServerContext carries the injected dependencies: the key-value store, the
// expense repository, the middleware chain and the instrumentation provider.
//
// HTTPServer exposes the MCP streamable HTTP endpoint behind bearer token
// verification and serves:
//   - Protected Resource Metadata (RFC 9728)
//   - Dynamic Client Registration (RFC 7591 subset) backed by the KV store
//   - /health, /healthz, /readyz and /healthz/detailed
//
// # Security Features
//
//   - HTTPS required for non-loopback base URLs
//   - Rate limiting per IP on the unauthenticated OAuth endpoints
//   - Security headers on OAuth responses
//   - Audit logging of every invocation with hashed user identifiers
package server
