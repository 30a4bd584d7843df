package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the expenses MCP server.
const TracerName = "github.com/teemow/expenses-mcp"

// Span attribute keys for MCP invocations.
// The gen_ai.* keys follow the OpenTelemetry GenAI semantic conventions.
const (
	SpanAttrMCPMethod     = "mcp.method.name"
	SpanAttrToolName      = "gen_ai.tool.name"
	SpanAttrOperationName = "gen_ai.operation.name"
	SpanAttrToolArguments = "gen_ai.tool.call.arguments"
	SpanAttrPromptName    = "gen_ai.prompt.name"
	SpanAttrResourceURI   = "mcp.resource.uri"

	SpanAttrToolSuccess     = "mcp.tool.success"
	SpanAttrToolError       = "mcp.tool.error"
	SpanAttrResourceSuccess = "mcp.resource.success"
	SpanAttrResourceError   = "mcp.resource.error"
	SpanAttrPromptSuccess   = "mcp.prompt.success"
	SpanAttrPromptError     = "mcp.prompt.error"

	SpanAttrKVCollection = "kv.collection"
	SpanAttrKVBackend    = "kv.backend"
	SpanAttrKVOperation  = "kv.operation"
	SpanAttrKVBatchSize  = "kv.batch_size"
)

// Operation classifiers and default MCP method names.
const (
	OperationExecuteTool  = "execute_tool"
	OperationReadResource = "read_resource"
	OperationGetPrompt    = "get_prompt"

	DefaultToolMethod     = "tools/call"
	DefaultResourceMethod = "resources/read"
	DefaultPromptMethod   = "prompts/get"

	// UnknownTarget names a tool span whose tool name is missing.
	UnknownTarget = "unknown"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithMethod adds the MCP method name attribute.
func (b *SpanAttributeBuilder) WithMethod(method string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrMCPMethod, method))
	return b
}

// WithTool adds the tool name and the execute_tool operation classifier.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrToolName, tool),
		attribute.String(SpanAttrOperationName, OperationExecuteTool),
	)
	return b
}

// WithToolArguments adds the serialized tool arguments.
func (b *SpanAttributeBuilder) WithToolArguments(serialized string) *SpanAttributeBuilder {
	if serialized != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrToolArguments, serialized))
	}
	return b
}

// WithResource adds the resource URI and the read_resource operation classifier.
func (b *SpanAttributeBuilder) WithResource(uri string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperationName, OperationReadResource))
	if uri != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrResourceURI, uri))
	}
	return b
}

// WithPrompt adds the prompt name and the get_prompt operation classifier.
func (b *SpanAttributeBuilder) WithPrompt(name string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperationName, OperationGetPrompt))
	if name != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrPromptName, name))
	}
	return b
}

// WithCollection adds the key-value collection attribute.
func (b *SpanAttributeBuilder) WithCollection(collection string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrKVCollection, collection))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes using the global tracer.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartKVSpan starts a client span for a key-value store operation, named "kv.<operation>".
func StartKVSpan(ctx context.Context, tracer trace.Tracer, operation, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(TracerName)
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrKVOperation, operation),
		attribute.String(SpanAttrKVCollection, collection),
	)
	allAttrs = append(allAttrs, attrs...)

	return tracer.Start(ctx, "kv."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
