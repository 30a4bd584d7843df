package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
)

// TelemetryStage opens a server span per invocation following the MCP
// semantic conventions. Errors are recorded on the span and returned
// unchanged.
type TelemetryStage struct {
	tracer          trace.Tracer
	recordArguments bool
}

// NewTelemetryStage creates a telemetry stage. A nil tracer uses the global
// provider. recordArguments attaches serialized tool arguments, which may
// contain user data.
func NewTelemetryStage(tracer trace.Tracer, recordArguments bool) *TelemetryStage {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentation.TracerName)
	}
	return &TelemetryStage{tracer: tracer, recordArguments: recordArguments}
}

// Handle implements Stage.
func (s *TelemetryStage) Handle(ctx context.Context, inv *Invocation, next Handler) (any, error) {
	method := inv.Method
	builder := instrumentation.NewSpanAttributeBuilder()
	var name, successKey, errorKey string

	switch inv.Kind {
	case KindResource:
		if method == "" {
			method = instrumentation.DefaultResourceMethod
		}
		name = spanName(method, inv.Target)
		builder.WithMethod(method).WithResource(inv.Target)
		successKey, errorKey = instrumentation.SpanAttrResourceSuccess, instrumentation.SpanAttrResourceError
	case KindPrompt:
		if method == "" {
			method = instrumentation.DefaultPromptMethod
		}
		name = spanName(method, inv.Target)
		builder.WithMethod(method).WithPrompt(inv.Target)
		successKey, errorKey = instrumentation.SpanAttrPromptSuccess, instrumentation.SpanAttrPromptError
	default:
		if method == "" {
			method = instrumentation.DefaultToolMethod
		}
		target := inv.Target
		if target == "" {
			target = instrumentation.UnknownTarget
		}
		name = method + " " + target
		builder.WithMethod(method).WithTool(target)
		if s.recordArguments && inv.Arguments != nil {
			builder.WithToolArguments(SerializeArguments(inv.Arguments))
		}
		successKey, errorKey = instrumentation.SpanAttrToolSuccess, instrumentation.SpanAttrToolError
	}

	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(builder.Build()...),
	)
	defer span.End()

	result, err := next(ctx, inv)
	if err != nil {
		span.SetAttributes(
			attribute.Bool(successKey, false),
			attribute.String(errorKey, errorText(err)),
		)
		instrumentation.SetSpanError(span, err)
		return result, err
	}

	span.SetAttributes(attribute.Bool(successKey, true))
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

// errorText is err's message, or its type when the message is empty.
func errorText(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}

func spanName(method, target string) string {
	if target == "" || target == instrumentation.UnknownTarget {
		return method
	}
	return method + " " + target
}

// SerializeArguments encodes v as JSON for diagnostics. Values JSON cannot
// encode fall back to their fmt representation.
func SerializeArguments(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
