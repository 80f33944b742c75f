// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"

	"github.com/juju/clock"

	"github.com/juju/dispatch/internal/metrics"
	"github.com/juju/dispatch/rpc"
	"github.com/juju/dispatch/rpc/params"
)

// codeUnknown labels failures that carry no well known code.
const codeUnknown = "error"

// Metrics records every call in collector, labelled with the error code of
// its outcome.
func Metrics(collector *metrics.Collector, clock clock.Clock) rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		typ := req.Type.String()
		done := collector.TrackInflight(typ)
		defer done()

		start := clock.Now()
		out, err := next(ctx, req)

		var code string
		if err != nil {
			if code = params.FromError(err).Code; code == "" {
				code = codeUnknown
			}
		}
		collector.ObserveCall(req.Path, typ, code, clock.Now().Sub(start))
		return out, err
	}
}
