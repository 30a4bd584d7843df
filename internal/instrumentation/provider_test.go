package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		ServiceName:       "test-service",
		ServiceVersion:    "1.0.0",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 1,
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected no-op metrics recorder")
	}
	if provider.PrometheusHandler() != nil {
		t.Error("expected no prometheus handler when disabled")
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("shutdown of disabled provider failed: %v", err)
	}

	// no-op recorder must not panic
	provider.Metrics().RecordInvocation(ctx, "tool", "add_user_expense", StatusSuccess, time.Millisecond)
}

func TestNewProvider_PrometheusExporter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, testConfig())
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}

	handler := provider.PrometheusHandler()
	if handler == nil {
		t.Fatal("expected prometheus handler")
	}

	provider.Metrics().RecordInvocation(ctx, "tool", "get_user_expenses", StatusSuccess, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mcp_invocations_total") {
		t.Error("expected mcp_invocations_total in scrape output")
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := testConfig()
	cfg.MetricsExporter = ExporterStdout
	cfg.TracingExporter = ExporterStdout

	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if provider.PrometheusHandler() != nil {
		t.Error("expected no prometheus handler for stdout exporter")
	}
}

func TestNewProvider_InvalidExporters(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.MetricsExporter = "invalid"
	if _, err := NewProvider(ctx, cfg); err == nil {
		t.Error("expected error for invalid metrics exporter")
	}

	cfg = testConfig()
	cfg.TracingExporter = "invalid"
	if _, err := NewProvider(ctx, cfg); err == nil {
		t.Error("expected error for invalid tracing exporter")
	}

	cfg = testConfig()
	cfg.TracingExporter = ExporterOTLP
	if _, err := NewProvider(ctx, cfg); err == nil {
		t.Error("expected error for OTLP tracing without endpoint")
	}
}

func TestProvider_Tracer(t *testing.T) {
	ctx := context.Background()

	disabled, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, span := disabled.Tracer("test").Start(ctx, "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled provider should hand out no-op spans")
	}
	span.End()

	enabled, err := NewProvider(ctx, testConfig())
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = enabled.Shutdown(ctx) }()

	if enabled.TracerProvider() == nil {
		t.Error("expected tracer provider")
	}
	if enabled.Tracer("test") == nil {
		t.Error("expected tracer")
	}
}

func TestProvider_RecordToolArguments(t *testing.T) {
	cfg := Config{Enabled: false, RecordToolArguments: true}
	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !provider.RecordToolArguments() {
		t.Error("expected RecordToolArguments to mirror config")
	}
}

func TestProvider_NilReceiver(t *testing.T) {
	var p *Provider
	if p.Enabled() || p.RecordToolArguments() {
		t.Error("nil provider must report disabled")
	}
	if p.Metrics() != nil || p.PrometheusHandler() != nil {
		t.Error("nil provider must not expose recorders")
	}
	if p.Tracer(TracerName) == nil {
		t.Error("nil provider must still hand out a no-op tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsExporter = "statsd"
	if _, err := NewProvider(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "unsupported metrics exporter") {
		t.Errorf("expected unsupported exporter error, got %v", err)
	}

}
