package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrBackend    = "backend"
	attrCollection = "collection"
	attrResult     = "result"
	attrProvider   = "provider"
	attrKind       = "kind"
	attrTarget     = "target"
)

// Metrics provides methods for recording observability metrics.
// The zero value is a valid no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Key-value store metrics
	kvOperationsTotal   metric.Int64Counter
	kvOperationDuration metric.Float64Histogram
	kvLookupsTotal      metric.Int64Counter

	// Authentication metrics
	authVerificationsTotal metric.Int64Counter
	clientRegistrations    metric.Int64Counter

	// MCP invocation metrics
	invocationsTotal   metric.Int64Counter
	invocationDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.kvOperationsTotal, err = meter.Int64Counter(
		"kv_store_operations_total",
		metric.WithDescription("Total number of key-value backend operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_store_operations_total counter: %w", err)
	}

	m.kvOperationDuration, err = meter.Float64Histogram(
		"kv_store_operation_duration_seconds",
		metric.WithDescription("Key-value backend operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_store_operation_duration_seconds histogram: %w", err)
	}

	m.kvLookupsTotal, err = meter.Int64Counter(
		"kv_store_lookups_total",
		metric.WithDescription("Key-value lookups by result (hit, miss, expired)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_store_lookups_total counter: %w", err)
	}

	m.authVerificationsTotal, err = meter.Int64Counter(
		"auth_token_verifications_total",
		metric.WithDescription("Total number of bearer token verifications"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_token_verifications_total counter: %w", err)
	}

	m.clientRegistrations, err = meter.Int64Counter(
		"oauth_client_registrations_total",
		metric.WithDescription("Total number of dynamic OAuth client registrations"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_client_registrations_total counter: %w", err)
	}

	m.invocationsTotal, err = meter.Int64Counter(
		"mcp_invocations_total",
		metric.WithDescription("Total number of MCP tool, resource and prompt invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_invocations_total counter: %w", err)
	}

	m.invocationDuration, err = meter.Float64Histogram(
		"mcp_invocation_duration_seconds",
		metric.WithDescription("MCP invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_invocation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordKVOperation records a single backend call made by the key-value store.
//
// Parameters:
//   - backend: backend type (memory, cosmos, redis)
//   - operation: read, upsert or delete
//   - status: "success" or "error"; a not-found read counts as success
func (m *Metrics) RecordKVOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if m == nil || m.kvOperationsTotal == nil || m.kvOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.kvOperationsTotal.Add(ctx, 1, attrs)
	m.kvOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordKVLookup records the outcome of a get or ttl call.
// Result should be one of LookupHit, LookupMiss, LookupExpired.
func (m *Metrics) RecordKVLookup(ctx context.Context, collection, result string) {
	if m == nil || m.kvLookupsTotal == nil {
		return
	}

	m.kvLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCollection, CollectionLabel(collection)),
		attribute.String(attrResult, result),
	))
}

// RecordAuthVerification records a bearer token verification attempt.
func (m *Metrics) RecordAuthVerification(ctx context.Context, provider, result string) {
	if m == nil || m.authVerificationsTotal == nil {
		return
	}

	m.authVerificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	))
}

// RecordClientRegistration records a dynamic client registration attempt.
func (m *Metrics) RecordClientRegistration(ctx context.Context, status string) {
	if m == nil || m.clientRegistrations == nil {
		return
	}

	m.clientRegistrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}

// RecordInvocation records an MCP invocation.
//
// Parameters:
//   - kind: tool, resource or prompt
//   - target: tool name, resource URI or prompt name
//   - status: "success" or "error"
func (m *Metrics) RecordInvocation(ctx context.Context, kind, target, status string, duration time.Duration) {
	if m == nil || m.invocationsTotal == nil || m.invocationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.String(attrTarget, target),
		attribute.String(attrStatus, status),
	)
	m.invocationsTotal.Add(ctx, 1, attrs)
	m.invocationDuration.Record(ctx, duration.Seconds(), attrs)
}
