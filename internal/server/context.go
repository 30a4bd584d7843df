package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"github.com/teemow/expenses-mcp/internal/kvstore"
	"github.com/teemow/expenses-mcp/internal/middleware"
)

// ServerContext holds the shared dependencies of the MCP server.
// Everything is injected at construction; handlers never build clients.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	store    *kvstore.Store
	expenses expenses.Repository
	chain    *middleware.Chain
	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
	sessions *auth.SessionRecorder
	logger   *slog.Logger
	closers  []io.Closer
	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithKVStore sets the key-value store.
func WithKVStore(store *kvstore.Store) Option {
	return func(sc *ServerContext) {
		sc.store = store
	}
}

// WithExpenseRepository sets the expense repository.
func WithExpenseRepository(repo expenses.Repository) Option {
	return func(sc *ServerContext) {
		sc.expenses = repo
	}
}

// WithChain sets the middleware chain every tool, resource and prompt runs through.
func WithChain(chain *middleware.Chain) Option {
	return func(sc *ServerContext) {
		sc.chain = chain
	}
}

// WithInstrumentationProvider sets the OpenTelemetry provider.
func WithInstrumentationProvider(p *instrumentation.Provider) Option {
	return func(sc *ServerContext) {
		sc.provider = p
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) {
		sc.audit = al
	}
}

// WithSessionRecorder sets the recorder of verified bearer tokens.
func WithSessionRecorder(r *auth.SessionRecorder) Option {
	return func(sc *ServerContext) {
		sc.sessions = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) {
		sc.logger = logger
	}
}

// WithCloser registers a resource released on Shutdown, in reverse order.
func WithCloser(c io.Closer) Option {
	return func(sc *ServerContext) {
		if c != nil {
			sc.closers = append(sc.closers, c)
		}
	}
}

// NewServerContext creates a new server context. A repository is required;
// the key-value store defaults to an in-memory one.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(sc)
	}

	if sc.expenses == nil {
		cancel()
		return nil, fmt.Errorf("expense repository is required")
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}
	if sc.store == nil {
		backend := kvstore.NewMemoryBackend()
		sc.closers = append(sc.closers, backend)
		sc.store = kvstore.New(backend, kvstore.WithLogger(sc.logger))
	}
	if sc.chain == nil {
		sc.chain = middleware.NewChain()
	}

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// KVStore returns the key-value store.
func (sc *ServerContext) KVStore() *kvstore.Store {
	return sc.store
}

// Expenses returns the expense repository.
func (sc *ServerContext) Expenses() expenses.Repository {
	return sc.expenses
}

// Chain returns the middleware chain.
func (sc *ServerContext) Chain() *middleware.Chain {
	return sc.chain
}

// Sessions returns the session recorder, or nil when tokens are not recorded.
func (sc *ServerContext) Sessions() *auth.SessionRecorder {
	return sc.sessions
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// InstrumentationProvider returns the OpenTelemetry provider, which may be nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	return sc.provider
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.provider == nil {
		return nil
	}
	return sc.provider.Metrics()
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and releases registered closers.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	var errs []error
	for i := len(sc.closers) - 1; i >= 0; i-- {
		if err := sc.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
