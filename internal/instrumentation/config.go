package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: expenses-mcp)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname).
	// On Azure Container Apps this is the replica name.
	ServiceInstanceID string

	// Enabled determines if instrumentation is active (default: true)
	// Set to false via INSTRUMENTATION_ENABLED=false to disable metrics and tracing
	Enabled bool

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint
	// Example: "localhost:4318" (without protocol prefix)
	OTLPEndpoint string

	// OTLPInsecure controls whether to use insecure HTTP for OTLP export.
	// Only for local collectors; traces carry tool arguments.
	OTLPInsecure bool

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 1.0)
	TraceSamplingRate float64

	// RecordToolArguments attaches serialized tool arguments to tool spans.
	// Arguments may contain user data (default: true).
	RecordToolArguments bool

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII controls whether raw user identifiers (oid/sub) are logged.
	// When false (default), only hashed identifiers are logged.
	IncludePII bool
}

// DefaultConfig returns a Config with sensible defaults based on environment variables.
func DefaultConfig() Config {
	return Config{
		ServiceName:         getEnvOrDefault("OTEL_SERVICE_NAME", "expenses-mcp"),
		ServiceVersion:      "unknown",
		ServiceInstanceID:   getEnvOrDefault("OTEL_SERVICE_INSTANCE_ID", getEnvOrDefault("CONTAINER_APP_REPLICA_NAME", "")),
		Enabled:             getEnvBoolOrDefault("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:     getEnvOrDefault("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:        getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:        getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:   getEnvFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 1.0),
		RecordToolArguments: getEnvBoolOrDefault("OTEL_RECORD_TOOL_ARGUMENTS", true),
		AuditLogging: AuditLoggingConfig{
			Enabled:    getEnvBoolOrDefault("AUDIT_LOGGING_ENABLED", true),
			IncludePII: getEnvBoolOrDefault("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" {
		switch {
		case c.TracingExporter == ExporterOTLP:
			return errors.New("OTLP endpoint is required when using OTLP tracing exporter")
		case c.MetricsExporter == ExporterOTLP:
			return errors.New("OTLP endpoint is required when using OTLP metrics exporter")
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	return envOr(key, defaultValue, func(v string) (string, error) { return v, nil })
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	return envOr(key, defaultValue, strconv.ParseBool)
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	return envOr(key, defaultValue, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

// envOr parses the variable key, falling back to def when it is unset or
// malformed.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// Key-value lookup results
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupExpired = "expired"

	// Token verification results
	AuthResultSuccess = "success"
	AuthResultFailure = "failure"
	AuthResultMissing = "missing"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
