package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/instrumentation"
)

// MCPEndpointPath is where the streamable HTTP transport is served.
const MCPEndpointPath = "/mcp"

// HTTPServerConfig configures the authenticated HTTP server.
type HTTPServerConfig struct {
	// BaseURL is the public URL of the server. HTTPS is required unless it
	// points at a loopback address.
	BaseURL string

	// Verifier validates bearer tokens on the MCP endpoint. Required.
	Verifier *auth.Verifier

	// Registry serves dynamic client registration when set.
	Registry *auth.ClientRegistry

	// RateLimiter guards the unauthenticated OAuth endpoints when set.
	RateLimiter *auth.RateLimiter

	// Health registers /health, /healthz and /readyz when set.
	Health *HealthChecker

	// Metrics records per-route HTTP request metrics when set.
	Metrics *instrumentation.Metrics

	// DisableStreaming makes the MCP endpoint answer with plain JSON only.
	DisableStreaming bool

	Logger *slog.Logger
}

// HTTPServer serves an MCP server over streamable HTTP behind bearer token
// verification.
type HTTPServer struct {
	mcpServer  *mcpserver.MCPServer
	config     HTTPServerConfig
	httpServer *http.Server
	logger     *slog.Logger
}

// NewHTTPServer creates the HTTP server. It refuses to run without an
// authentication provider.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, config HTTPServerConfig) (*HTTPServer, error) {
	if mcpServer == nil {
		return nil, fmt.Errorf("MCP server is required")
	}
	if config.Verifier == nil {
		return nil, fmt.Errorf("an authentication provider is required for the HTTP transport")
	}
	if err := validateHTTPSRequirement(config.BaseURL); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPServer{
		mcpServer: mcpServer,
		config:    config,
		logger:    logger,
	}, nil
}

// Handler builds the routed, instrumented HTTP handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.config.Health != nil {
		s.config.Health.RegisterHealthEndpoints(mux)
	}

	// Protected Resource Metadata endpoint (RFC 9728)
	// Tells MCP clients which authorization server issues tokens for /mcp.
	metadataHandler := http.HandlerFunc(s.config.Verifier.ServeProtectedResourceMetadata)
	s.handle(mux, auth.MetadataPath, s.config.RateLimiter.Middleware(metadataHandler))
	s.handle(mux, auth.MetadataPath+MCPEndpointPath, s.config.RateLimiter.Middleware(metadataHandler))

	// Dynamic Client Registration (RFC 7591) and client configuration (RFC 7592)
	if s.config.Registry != nil {
		s.handle(mux, auth.RegistrationPath, s.config.RateLimiter.Middleware(
			http.HandlerFunc(s.config.Registry.ServeRegistration)))
		s.handle(mux, auth.ClientConfigurationPattern, s.config.RateLimiter.Middleware(
			http.HandlerFunc(s.config.Registry.ServeClientConfiguration)))
	}

	var mcpHandler http.Handler
	if s.config.DisableStreaming {
		mcpHandler = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath(MCPEndpointPath),
			mcpserver.WithDisableStreaming(true),
		)
	} else {
		mcpHandler = mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath(MCPEndpointPath),
		)
	}
	// Verified claims are stored in the request context, which the streamable
	// transport hands to tool handlers.
	s.handle(mux, MCPEndpointPath, s.config.Verifier.RequireBearer(mcpHandler))

	return otelhttp.NewHandler(mux, "mcp-server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// handle registers h under pattern, recording request metrics by pattern.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	metrics := s.config.Metrics
	if metrics == nil {
		mux.Handle(pattern, h)
		return
	}
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, pattern, rec.status, time.Since(start))
	}))
}

// Start starts the HTTP server in a blocking manner.
func (s *HTTPServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		slog.String("addr", addr),
		slog.String("base_url", s.config.BaseURL),
		slog.String("auth_provider", s.config.Verifier.Config().Provider))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	// Parse URL to properly validate scheme and host
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	// Allow HTTP only for loopback addresses
	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
