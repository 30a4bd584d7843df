package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/azure"
	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"github.com/teemow/expenses-mcp/internal/kvstore"
	kvcosmos "github.com/teemow/expenses-mcp/internal/kvstore/cosmos"
	kvredis "github.com/teemow/expenses-mcp/internal/kvstore/redis"
	"github.com/teemow/expenses-mcp/internal/logging"
	"github.com/teemow/expenses-mcp/internal/middleware"
	"github.com/teemow/expenses-mcp/internal/prompts"
	"github.com/teemow/expenses-mcp/internal/resources"
	"github.com/teemow/expenses-mcp/internal/server"
	"github.com/teemow/expenses-mcp/internal/tools/expense_tools"
)

// serverName is the MCP implementation name reported to clients.
const serverName = "expenses-mcp"

// Rate limit for the unauthenticated OAuth endpoints, per client IP.
const (
	oauthRatePerSecond = 5
	oauthRateBurst     = 20
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server providing expense tracking
tools, resources and prompts for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Authentication (streamable-http only):
  Every request to /mcp must carry a bearer token issued by the configured
  identity provider:
    --auth-provider entra     (AZURE_TENANT_ID, ENTRA_PROXY_AZURE_CLIENT_ID)
    --auth-provider keycloak  (KEYCLOAK_REALM_URL, KEYCLOAK_MCP_SERVER_AUDIENCE)

Storage:
  Expenses:  --expense-store-type memory|cosmos (EXPENSE_STORE_TYPE)
  OAuth KV:  --kv-store-type memory|cosmos|redis (KV_STORE_TYPE)

Every flag can also be set through the environment variable shown in
the documentation, e.g. MCP_BASE_URL or AZURE_COSMOSDB_ACCOUNT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfigFromViper(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	registerServeFlags(v, cmd.Flags())
	return cmd
}

// setupLogging installs the default slog logger. Logs always go to stderr
// so the stdio transport keeps stdout for protocol messages.
func setupLogging(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	installLibraryLoggers(logger)
	return logger
}

// installLibraryLoggers points the process-wide Redis and Azure SDK loggers
// at logger.
func installLibraryLoggers(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	goredis.SetLogger(logging.NewSlogAdapter(logger.With(logging.Component("redis"))))
	logging.NewSlogAdapter(logger.With(logging.Component("azure"))).InstallAzureListener()
}

func runServe(parent context.Context, cfg ServeConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := setupLogging(cfg.Debug)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", "error", err)
		}
	}()

	instrumentation.RegisterCollections(auth.ClientsCollection, cfg.KVDefaultCollection)

	var closers []io.Closer

	var db *azcosmos.DatabaseClient
	if cfg.usesCosmos() {
		db, err = azure.NewCosmosDatabase(cfg.Cosmos, provider.TracerProvider(), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Cosmos DB: %w", err)
		}
	}

	store, storeCloser, err := buildKVStore(shutdownCtx, cfg, db, provider, logger)
	if err != nil {
		return err
	}
	if storeCloser != nil {
		closers = append(closers, storeCloser)
	}

	repo, err := buildExpenseRepository(cfg, db)
	if err != nil {
		closeAll(closers, logger)
		return err
	}

	tokenStore := memory.New()
	closers = append(closers, closerFunc(func() error {
		tokenStore.Stop()
		return nil
	}))
	sessions := auth.NewSessionRecorder(tokenStore)

	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	chain := middleware.NewChain(
		middleware.NewTelemetryStage(provider.Tracer(instrumentation.TracerName), provider.RecordToolArguments()),
		middleware.NewAuthStage(auth.ContextClaims{}, logger),
		middleware.NewMetricsStage(provider.Metrics(), audit),
	)

	opts := []server.Option{
		server.WithKVStore(store),
		server.WithExpenseRepository(repo),
		server.WithChain(chain),
		server.WithInstrumentationProvider(provider),
		server.WithAuditLogger(audit),
		server.WithSessionRecorder(sessions),
		server.WithLogger(logger),
	}
	for _, c := range closers {
		opts = append(opts, server.WithCloser(c))
	}

	serverContext, err := server.NewServerContext(shutdownCtx, opts...)
	if err != nil {
		closeAll(closers, logger)
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", "error", err)
		}
	}()

	mcpSrv := newMCPServer()
	if err := registerAll(mcpSrv, serverContext); err != nil {
		return err
	}

	logger.Info("expense store ready",
		"expense_store", repo.Kind(),
		"kv_store", store.Backend().Kind(),
		"transport", cfg.Transport)

	// Start the appropriate server based on transport type
	switch cfg.Transport {
	case TransportStdio:
		return runStdioServer(mcpSrv)
	case TransportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, cfg, sessions)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Transport)
	}
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer(serverName, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
		mcpserver.WithPromptCapabilities(false),
	)
}

// buildKVStore opens the configured key-value backend. The returned closer
// may be nil.
func buildKVStore(ctx context.Context, cfg ServeConfig, db *azcosmos.DatabaseClient, provider *instrumentation.Provider, logger *slog.Logger) (*kvstore.Store, io.Closer, error) {
	var (
		backend kvstore.Backend
		closer  io.Closer
	)

	switch cfg.KVStoreType {
	case StoreMemory:
		mem := kvstore.NewMemoryBackend()
		backend, closer = mem, mem
	case StoreCosmos:
		b, err := kvcosmos.NewFromDatabase(db, cfg.OAuthContainer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open KV container: %w", err)
		}
		backend = b
	case StoreRedis:
		rcfg, err := cfg.redisConfig()
		if err != nil {
			return nil, nil, err
		}
		b, err := kvredis.Dial(ctx, rcfg)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = b, b
	default:
		return nil, nil, fmt.Errorf("unsupported KV store type %q", cfg.KVStoreType)
	}

	store := kvstore.New(backend,
		kvstore.WithDefaultCollection(cfg.KVDefaultCollection),
		kvstore.WithLogger(logger),
		kvstore.WithMetrics(provider.Metrics()),
		kvstore.WithTracer(provider.Tracer(instrumentation.TracerName)),
	)
	return store, closer, nil
}

func buildExpenseRepository(cfg ServeConfig, db *azcosmos.DatabaseClient) (expenses.Repository, error) {
	switch cfg.ExpenseStoreType {
	case StoreMemory:
		return expenses.NewMemoryRepository(), nil
	case StoreCosmos:
		container, err := db.NewContainer(cfg.UserContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to open expense container: %w", err)
		}
		return expenses.NewCosmosRepository(container), nil
	default:
		return nil, fmt.Errorf("unsupported expense store type %q", cfg.ExpenseStoreType)
	}
}

// registerAll registers every tool, resource and prompt.
func registerAll(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := expense_tools.RegisterExpenseTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register expense tools: %w", err)
	}
	resources.RegisterExpenseResources(mcpSrv, sc)
	resources.RegisterUserResources(mcpSrv, sc)
	prompts.RegisterPrompts(mcpSrv, sc)
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, cfg ServeConfig, sessions *auth.SessionRecorder) error {
	logger := sc.Logger()
	provider := sc.InstrumentationProvider()

	verifier, err := auth.NewVerifier(cfg.Auth,
		auth.WithVerifierMetrics(sc.Metrics()),
		auth.WithVerifierLogger(logger),
		auth.WithSessionRecorder(sessions),
	)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}
	defer verifier.Close()

	if !cfg.Registry.AllowPublicRegistration && cfg.Registry.RegistrationToken == "" {
		logger.Warn("client registration is closed: set MCP_OAUTH_REGISTRATION_TOKEN or allow public registration")
	}
	if cfg.Registry.AllowPublicRegistration {
		logger.Warn("public client registration is enabled, not recommended for production")
	}
	registry := auth.NewClientRegistry(sc.KVStore(), cfg.Registry, logger, sc.Metrics())

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider != nil && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	health := server.NewHealthChecker(sc)
	httpServer, err := server.NewHTTPServer(mcpSrv, server.HTTPServerConfig{
		BaseURL:          cfg.BaseURL,
		Verifier:         verifier,
		Registry:         registry,
		RateLimiter:      auth.NewRateLimiter(oauthRatePerSecond, oauthRateBurst, cfg.TrustProxy),
		Health:           health,
		Metrics:          sc.Metrics(),
		DisableStreaming: cfg.DisableStreaming,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting streamable HTTP server",
		"addr", cfg.HTTPAddr,
		"endpoint", server.MCPEndpointPath,
		"base_url", cfg.BaseURL,
		"auth_provider", cfg.Auth.Provider,
		"metadata", cfg.Auth.MetadataURL())

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}
