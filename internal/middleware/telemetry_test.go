package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/expenses-mcp/internal/instrumentation"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp.Tracer("test")
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[string]any {
	m := make(map[string]any)
	for _, kv := range span.Attributes() {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func okHandler(context.Context, *Invocation) (any, error) { return "ok", nil }

func TestTelemetryStage_ToolSuccess(t *testing.T) {
	recorder, tracer := newRecorder(t)
	chain := NewChain(NewTelemetryStage(tracer, true))

	inv := NewInvocation(KindTool, "", "add_user_expense", map[string]any{"amount": 12.5})
	_, err := chain.Execute(context.Background(), inv, okHandler)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "tools/call add_user_expense", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := spanAttrs(span)
	assert.Equal(t, "tools/call", attrs[instrumentation.SpanAttrMCPMethod])
	assert.Equal(t, "add_user_expense", attrs[instrumentation.SpanAttrToolName])
	assert.Equal(t, instrumentation.OperationExecuteTool, attrs[instrumentation.SpanAttrOperationName])
	assert.Equal(t, `{"amount":12.5}`, attrs[instrumentation.SpanAttrToolArguments])
	assert.Equal(t, true, attrs[instrumentation.SpanAttrToolSuccess])
}

func TestTelemetryStage_ToolError(t *testing.T) {
	recorder, tracer := newRecorder(t)
	chain := NewChain(NewTelemetryStage(tracer, false))
	boom := errors.New("boom")

	inv := NewInvocation(KindTool, "tools/call", "get_user_expenses", map[string]any{"x": 1})
	_, err := chain.Execute(context.Background(), inv, func(context.Context, *Invocation) (any, error) {
		return nil, boom
	})
	assert.Same(t, boom, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "boom", span.Status().Description)

	attrs := spanAttrs(span)
	assert.Equal(t, false, attrs[instrumentation.SpanAttrToolSuccess])
	assert.Equal(t, "boom", attrs[instrumentation.SpanAttrToolError])
	assert.NotContains(t, attrs, instrumentation.SpanAttrToolArguments)

	require.Len(t, span.Events(), 1)
	assert.Equal(t, "exception", span.Events()[0].Name)
}

func TestTelemetryStage_EmptyErrorMessage(t *testing.T) {
	recorder, tracer := newRecorder(t)
	chain := NewChain(NewTelemetryStage(tracer, false))

	inv := NewInvocation(KindTool, "tools/call", "get_user_expenses", nil)
	_, err := chain.Execute(context.Background(), inv, func(context.Context, *Invocation) (any, error) {
		return nil, errors.New("")
	})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "*errors.errorString", spanAttrs(spans[0])[instrumentation.SpanAttrToolError])
}

func TestTelemetryStage_UnknownTool(t *testing.T) {
	recorder, tracer := newRecorder(t)
	chain := NewChain(NewTelemetryStage(tracer, true))

	_, err := chain.Execute(context.Background(), NewInvocation(KindTool, "", "", nil), okHandler)
	require.NoError(t, err)

	span := recorder.Ended()[0]
	assert.Equal(t, "tools/call unknown", span.Name())
	assert.Equal(t, "unknown", spanAttrs(span)[instrumentation.SpanAttrToolName])
}

func TestTelemetryStage_ResourceAndPrompt(t *testing.T) {
	tests := []struct {
		name       string
		inv        *Invocation
		wantSpan   string
		successKey string
		operation  string
	}{
		{
			name:       "resource",
			inv:        NewInvocation(KindResource, "", "expenses://categories", nil),
			wantSpan:   "resources/read expenses://categories",
			successKey: instrumentation.SpanAttrResourceSuccess,
			operation:  instrumentation.OperationReadResource,
		},
		{
			name:       "resource without uri",
			inv:        NewInvocation(KindResource, "", "", nil),
			wantSpan:   "resources/read",
			successKey: instrumentation.SpanAttrResourceSuccess,
			operation:  instrumentation.OperationReadResource,
		},
		{
			name:       "prompt",
			inv:        NewInvocation(KindPrompt, "prompts/get", "analyze_spending_prompt", nil),
			wantSpan:   "prompts/get analyze_spending_prompt",
			successKey: instrumentation.SpanAttrPromptSuccess,
			operation:  instrumentation.OperationGetPrompt,
		},
		{
			name:       "prompt with unknown name",
			inv:        NewInvocation(KindPrompt, "", "unknown", nil),
			wantSpan:   "prompts/get",
			successKey: instrumentation.SpanAttrPromptSuccess,
			operation:  instrumentation.OperationGetPrompt,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, tracer := newRecorder(t)
			chain := NewChain(NewTelemetryStage(tracer, true))

			_, err := chain.Execute(context.Background(), tt.inv, okHandler)
			require.NoError(t, err)

			span := recorder.Ended()[0]
			assert.Equal(t, tt.wantSpan, span.Name())
			attrs := spanAttrs(span)
			assert.Equal(t, true, attrs[tt.successKey])
			assert.Equal(t, tt.operation, attrs[instrumentation.SpanAttrOperationName])
		})
	}
}

func TestTelemetryStage_HandlerSeesSpan(t *testing.T) {
	_, tracer := newRecorder(t)
	chain := NewChain(NewTelemetryStage(tracer, false))

	out, err := chain.Execute(context.Background(), NewInvocation(KindTool, "", "t", nil),
		func(ctx context.Context, _ *Invocation) (any, error) {
			return trace.SpanContextFromContext(ctx).IsValid(), nil
		})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestSerializeArguments(t *testing.T) {
	assert.Equal(t, "", SerializeArguments(nil))
	assert.Equal(t, `{"a":"ü"}`, SerializeArguments(map[string]any{"a": "ü"}))

	// channels cannot be encoded as JSON
	ch := make(chan int)
	assert.Contains(t, SerializeArguments(map[string]any{"c": ch}), "map[c:0x")
}

func TestTelemetryStage_NilTracer(t *testing.T) {
	stage := NewTelemetryStage(nil, false)
	_, err := NewChain(stage).Execute(context.Background(), NewInvocation(KindTool, "", "t", nil), okHandler)
	assert.NoError(t, err)
}
