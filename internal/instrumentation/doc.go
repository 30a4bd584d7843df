// Package instrumentation provides OpenTelemetry instrumentation for the
// expenses MCP server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Key-value store:
//   - kv_store_operations_total, kv_store_operation_duration_seconds: backend calls by backend, operation, status
//   - kv_store_lookups_total: get/ttl outcomes by collection and result (hit, miss, expired)
//
// Authentication:
//   - auth_token_verifications_total: bearer token checks by provider and result
//   - oauth_client_registrations_total: dynamic client registrations by status
//
// MCP:
//   - mcp_invocations_total, mcp_invocation_duration_seconds: by kind, target, status
//
// # Tracing
//
// Every MCP call gets a server span named "<method> <target>" from the
// middleware chain. Key-value backend calls get client spans named
// "kv.<operation>". Azure SDK calls are bridged through azotel.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - OTEL_RECORD_TOOL_ARGUMENTS: attach tool arguments to spans (default: true)
//   - OTEL_SERVICE_NAME: Service name (default: expenses-mcp)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordInvocation(ctx, "tool", "add_user_expense", "success", time.Since(start))
package instrumentation
