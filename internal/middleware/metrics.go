package middleware

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
)

// MetricsStage records invocation metrics and writes an audit log line for
// every invocation. It runs after AuthStage so the audit record carries the
// resolved user.
type MetricsStage struct {
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

// NewMetricsStage creates a metrics stage. Either argument may be nil.
func NewMetricsStage(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) *MetricsStage {
	return &MetricsStage{metrics: metrics, audit: audit}
}

// Handle implements Stage.
func (s *MetricsStage) Handle(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	// If no instrumentation configured, just call the handler
	if s.metrics == nil && s.audit == nil {
		return next(ctx, inv)
	}

	start := time.Now()
	record := instrumentation.NewInvocationRecord(string(inv.Kind), inv.Method, inv.Target).
		WithSpanContext(ctx).
		WithUser(inv.StateString(StateUserID))

	result, err := next(ctx, inv)

	status := instrumentation.StatusSuccess
	if err != nil || isErrorResult(result) {
		status = instrumentation.StatusError
		record.Complete(false, err)
	} else {
		record.Complete(true, nil)
	}

	s.metrics.RecordInvocation(ctx, string(inv.Kind), inv.Target, status, time.Since(start))
	s.audit.LogInvocation(record)

	return result, err
}

func isErrorResult(result any) bool {
	r, ok := result.(*mcp.CallToolResult)
	return ok && r != nil && r.IsError
}
