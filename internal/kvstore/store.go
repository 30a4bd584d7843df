package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"github.com/teemow/expenses-mcp/internal/logging"
)

// Store is a TTL-aware key-value store over a Backend.
// It holds no locks of its own and is safe for concurrent use when the
// backend is.
type Store struct {
	backend           Backend
	defaultCollection string
	logger            *slog.Logger
	metrics           *instrumentation.Metrics
	tracer            trace.Tracer
	now               func() time.Time
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:           backend,
		defaultCollection: DefaultCollection,
		logger:            slog.Default(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "kvstore")
	instrumentation.RegisterCollections(s.defaultCollection)
	return s
}

// DefaultCollection returns the collection used when a call names none.
func (s *Store) DefaultCollection() string {
	return s.defaultCollection
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Get returns the value stored under key. Missing and expired entries are
// reported as StatusNotFound; an expired document is deleted first.
func (s *Store) Get(ctx context.Context, key string, opts ...CallOption) Result {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "get", o.collection)
	defer span.End()

	r := s.lookup(ctx, o.collection, key, false)
	span.SetAttributes(attribute.String("kv.result", r.Status.String()))
	return r
}

// GetMany returns one result per key, in input order.
// Each key is read independently.
func (s *Store) GetMany(ctx context.Context, keys []string, opts ...CallOption) []Result {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "get_many", o.collection,
		attribute.Int(instrumentation.SpanAttrKVBatchSize, len(keys)))
	defer span.End()

	results := make([]Result, len(keys))
	for i, key := range keys {
		results[i] = s.lookup(ctx, o.collection, key, false)
	}
	return results
}

// TTL is like Get but also reports the remaining lifetime of the entry.
func (s *Store) TTL(ctx context.Context, key string, opts ...CallOption) Result {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "ttl", o.collection)
	defer span.End()

	r := s.lookup(ctx, o.collection, key, true)
	span.SetAttributes(attribute.String("kv.result", r.Status.String()))
	return r
}

// TTLMany is like GetMany but also reports remaining lifetimes.
func (s *Store) TTLMany(ctx context.Context, keys []string, opts ...CallOption) []Result {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "ttl_many", o.collection,
		attribute.Int(instrumentation.SpanAttrKVBatchSize, len(keys)))
	defer span.End()

	results := make([]Result, len(keys))
	for i, key := range keys {
		results[i] = s.lookup(ctx, o.collection, key, true)
	}
	return results
}

// Put writes value under key, replacing any previous entry.
// With a positive WithTTL the entry expires after that duration and the
// backend receives the same lifetime, in whole seconds, as a native hint.
//
// Values are stored as JSON. Numbers read back as int64 when integral and
// float64 otherwise, so an int written here is returned as int64.
func (s *Store) Put(ctx context.Context, key string, value map[string]any, opts ...CallOption) error {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "put", o.collection)
	defer span.End()

	if err := validatePut(key, value); err != nil {
		instrumentation.SetSpanError(span, err)
		return err
	}
	if err := s.write(ctx, o, key, value); err != nil {
		instrumentation.SetSpanError(span, err)
		return err
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

// PutMany writes values[i] under keys[i] in order.
// Mismatched lengths are rejected before anything is written. Writes are not
// atomic: on failure, earlier pairs stay written and the error names the key
// that failed.
func (s *Store) PutMany(ctx context.Context, keys []string, values []map[string]any, opts ...CallOption) error {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "put_many", o.collection,
		attribute.Int(instrumentation.SpanAttrKVBatchSize, len(keys)))
	defer span.End()

	if len(keys) != len(values) {
		err := &ValidationError{
			Op:     "put_many",
			Reason: fmt.Sprintf("got %d keys and %d values", len(keys), len(values)),
		}
		instrumentation.SetSpanError(span, err)
		return err
	}
	for i := range keys {
		if err := validatePut(keys[i], values[i]); err != nil {
			instrumentation.SetSpanError(span, err)
			return err
		}
	}

	for i := range keys {
		if err := s.write(ctx, o, keys[i], values[i]); err != nil {
			instrumentation.SetSpanError(span, err)
			return err
		}
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

// Delete removes key and reports whether a document was deleted.
// Backend failures are logged and reported as false.
func (s *Store) Delete(ctx context.Context, key string, opts ...CallOption) bool {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "delete", o.collection)
	defer span.End()

	deleted := s.remove(ctx, o.collection, key)
	span.SetAttributes(attribute.Bool("kv.deleted", deleted))
	return deleted
}

// DeleteMany removes each key independently and returns how many were deleted.
func (s *Store) DeleteMany(ctx context.Context, keys []string, opts ...CallOption) int {
	o := s.resolve(opts)
	ctx, span := instrumentation.StartKVSpan(ctx, s.tracer, "delete_many", o.collection,
		attribute.Int(instrumentation.SpanAttrKVBatchSize, len(keys)))
	defer span.End()

	count := 0
	for _, key := range keys {
		if s.remove(ctx, o.collection, key) {
			count++
		}
	}
	span.SetAttributes(attribute.Int("kv.deleted_count", count))
	return count
}

func (s *Store) lookup(ctx context.Context, collection, key string, withTTL bool) Result {
	start := time.Now()
	doc, err := s.backend.ReadDocument(ctx, collection, DocumentID(collection, key))
	switch {
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationRead, instrumentation.StatusSuccess, time.Since(start))
		s.metrics.RecordKVLookup(ctx, collection, instrumentation.LookupMiss)
		return Result{Status: StatusNotFound}
	case err != nil:
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationRead, instrumentation.StatusError, time.Since(start))
		s.logger.WarnContext(ctx, "read failed, treating as missing",
			logging.Collection(collection),
			logging.Key(key),
			logging.Err(err))
		return Result{Status: StatusError, Err: err}
	}
	s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationRead, instrumentation.StatusSuccess, time.Since(start))

	now := s.now()
	entry := doc.ManagedEntry()
	if entry.IsExpired(now) {
		s.metrics.RecordKVLookup(ctx, collection, instrumentation.LookupExpired)
		s.remove(ctx, collection, key)
		return Result{Status: StatusNotFound}
	}

	s.metrics.RecordKVLookup(ctx, collection, instrumentation.LookupHit)
	r := Result{Status: StatusFound, Value: entry.Value}
	if withTTL {
		if remaining, ok := entry.TTL(now); ok {
			r.ExpiresIn = &remaining
		}
	}
	return r
}

func (s *Store) write(ctx context.Context, o callOptions, key string, value map[string]any) error {
	entry := NewEntry(value, s.now(), o.ttl)
	doc := NewDocument(o.collection, key, entry, o.ttl)

	start := time.Now()
	err := s.backend.UpsertDocument(ctx, doc)
	if err != nil {
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationUpsert, instrumentation.StatusError, time.Since(start))
		s.logger.ErrorContext(ctx, "write failed",
			logging.Collection(o.collection),
			logging.Key(key),
			logging.Err(err))
		return &WriteError{Op: "put", Collection: o.collection, Key: key, Err: err}
	}
	s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationUpsert, instrumentation.StatusSuccess, time.Since(start))
	return nil
}

func (s *Store) remove(ctx context.Context, collection, key string) bool {
	start := time.Now()
	err := s.backend.DeleteDocument(ctx, collection, DocumentID(collection, key))
	switch {
	case err == nil:
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationDelete, instrumentation.StatusSuccess, time.Since(start))
		return true
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationDelete, instrumentation.StatusSuccess, time.Since(start))
		return false
	default:
		s.metrics.RecordKVOperation(ctx, s.backend.Kind(), instrumentation.OperationDelete, instrumentation.StatusError, time.Since(start))
		s.logger.WarnContext(ctx, "delete failed",
			logging.Collection(collection),
			logging.Key(key),
			logging.Err(err))
		return false
	}
}

func validatePut(key string, value map[string]any) error {
	if key == "" {
		return &ValidationError{Op: "put", Reason: "key must not be empty"}
	}
	if _, err := json.Marshal(value); err != nil {
		return &ValidationError{Op: "put", Reason: fmt.Sprintf("value for %q is not serializable: %v", key, err)}
	}
	return nil
}
