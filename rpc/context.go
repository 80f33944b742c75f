// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import "context"

type tracingKey struct{}

type tracing struct {
	traceID, spanID string
	flags           int
}

// WithTracing returns a context carrying the trace of the current call, so
// that handlers can correlate their own output with it.
func WithTracing(ctx context.Context, traceID, spanID string, flags int) context.Context {
	return context.WithValue(ctx, tracingKey{}, tracing{
		traceID: traceID,
		spanID:  spanID,
		flags:   flags,
	})
}

// TracingFromContext returns the trace set by WithTracing, or empty values.
func TracingFromContext(ctx context.Context) (string, string, int) {
	t, _ := ctx.Value(tracingKey{}).(tracing)
	return t.traceID, t.spanID, t.flags
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the id of the current call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
