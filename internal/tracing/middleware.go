package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolkit/pkg/toolexecutor"
)

// TracerName names the tracer used for tool spans.
const TracerName = "github.com/harun/toolkit/toolexecutor"

// Middleware opens one span per tool invocation attempt on the global
// tracer provider.
func Middleware() toolexecutor.Middleware {
	return MiddlewareWithProvider(nil)
}

// MiddlewareWithProvider is like Middleware with an explicit provider.
func MiddlewareWithProvider(tp trace.TracerProvider) toolexecutor.Middleware {
	return func(ctx context.Context, input map[string]interface{}, ec *toolexecutor.ExecutionContext, next toolexecutor.Next) (interface{}, error) {
		info, _ := toolexecutor.CallInfoFromContext(ctx)
		attrs := []attribute.KeyValue{
			attribute.String("tool.name", info.Tool),
			attribute.String("tool.call_id", info.ID),
			attribute.Int("tool.attempt", info.Attempt),
			attribute.Bool("tool.server", ec.IsServer),
		}
		if traceID := GetTraceID(ctx); traceID != "" {
			attrs = append(attrs, attribute.String("toolkit.trace_id", traceID))
		}

		ctx, span := StartSpan(ctx, tp, TracerName, "tool.execute "+info.Tool, attrs...)
		defer span.End()

		out, err := next(ctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("tool.error_code", toolexecutor.NewErrorInfo(err).Code))
			return nil, err
		}

		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}
