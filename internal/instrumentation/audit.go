package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/expenses-mcp/internal/logging"
	"go.opentelemetry.io/otel/trace"
)

// InvocationRecord captures one MCP tool, resource or prompt call for audit logging.
//
// # Privacy Considerations
//
// UserID holds the caller's oid or sub claim. Unless PII logging is enabled
// only its hash is written.
type InvocationRecord struct {
	Kind   string
	Target string
	Method string

	UserID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewInvocationRecord creates a new InvocationRecord with timing started.
// Call Complete() when the invocation finishes.
func NewInvocationRecord(kind, method, target string) *InvocationRecord {
	return &InvocationRecord{
		Kind:      kind,
		Method:    method,
		Target:    target,
		StartTime: time.Now(),
	}
}

// WithUser sets the resolved user identifier.
func (r *InvocationRecord) WithUser(userID string) *InvocationRecord {
	r.UserID = userID
	return r
}

// WithSpanContext extracts trace context from the current span.
func (r *InvocationRecord) WithSpanContext(ctx context.Context) *InvocationRecord {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.TraceID = span.SpanContext().TraceID().String()
		r.SpanID = span.SpanContext().SpanID().String()
	}
	return r
}

// Complete marks the invocation as completed and calculates duration.
func (r *InvocationRecord) Complete(success bool, err error) *InvocationRecord {
	r.Duration = time.Since(r.StartTime)
	r.Success = success
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Status returns "success" or "error" based on the Success field.
func (r *InvocationRecord) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for the record.
// With includePII the raw user identifier is logged instead of its hash.
func (r *InvocationRecord) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", r.Kind),
		slog.String("target", r.Target),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}

	if r.Method != "" {
		attrs = append(attrs, slog.String("method", r.Method))
	}
	if r.UserID != "" {
		if includePII {
			attrs = append(attrs, slog.String("user_id", r.UserID))
		} else {
			attrs = append(attrs, logging.UserHash(r.UserID))
		}
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// AuditLogger provides structured audit logging for MCP invocations.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogInvocation writes one audit line. Failures are logged at WARN.
func (al *AuditLogger) LogInvocation(r *InvocationRecord) {
	if al == nil || !al.enabled {
		return
	}

	attrs := r.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if r.Success {
		al.logger.Info("mcp_invocation", args...)
	} else {
		al.logger.Warn("mcp_invocation_failed", args...)
	}
}
