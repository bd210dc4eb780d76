package zenohrpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/AkihiroUeda35/zenoh-rpc-go"

// startCallSpan wraps a client call. Without a configured TracerProvider
// this resolves to the otel no-op tracer.
func startCallSpan(ctx context.Context, topic string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "zenohrpc.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.topic", topic)))
}

func endCallSpan(span trace.Span, status RpcStatus) {
	if status != StatusOK {
		span.SetStatus(codes.Error, status.String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
