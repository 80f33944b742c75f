// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/juju/dispatch/rpc"
)

// Tracing starts a span named after the procedure for every call. The
// span's ids are put on the context with rpc.WithTracing. For
// subscriptions the span covers opening the stream, not its lifetime.
func Tracing(tracer trace.Tracer) rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		ctx, span := tracer.Start(ctx, req.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.path", req.Path),
				attribute.String("rpc.type", req.Type.String()),
			),
		)
		defer span.End()

		sc := span.SpanContext()
		ctx = rpc.WithTracing(ctx, sc.TraceID().String(), sc.SpanID().String(), int(sc.TraceFlags()))

		out, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}
