package kvstore

import (
	"log/slog"
	"time"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCollection is used when neither the store nor the call names one.
const DefaultCollection = "mcp-kv"

// Option configures a Store.
type Option func(*Store)

// WithDefaultCollection sets the collection used when a call does not name one.
func WithDefaultCollection(collection string) Option {
	return func(s *Store) {
		if collection != "" {
			s.defaultCollection = collection
		}
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for store spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithClock replaces time.Now. Tests use it to move past expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// CallOption adjusts a single store call.
type CallOption func(*callOptions)

type callOptions struct {
	collection string
	ttl        time.Duration
}

// InCollection selects the collection (and partition) for the call.
func InCollection(collection string) CallOption {
	return func(o *callOptions) {
		o.collection = collection
	}
}

// WithTTL sets the lifetime of written entries. Zero or negative means no expiry.
// Read calls ignore it.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = ttl
	}
}

func (s *Store) resolve(opts []CallOption) callOptions {
	o := callOptions{collection: s.defaultCollection}
	for _, opt := range opts {
		opt(&o)
	}
	if o.collection == "" {
		o.collection = s.defaultCollection
	}
	return o
}
