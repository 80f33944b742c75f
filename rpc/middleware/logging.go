// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package middleware holds policy middleware for an rpc.Router.
//
// Each constructor returns an ordinary rpc.Middleware (or rpc.ContextFunc,
// for Auth) and can be installed router-wide with rpc.WithMiddleware or
// on a single procedure at registration.
package middleware

import (
	"context"

	"github.com/juju/clock"
	"github.com/rs/xid"

	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/rpc"
)

// Logging logs every call with its duration. Calls without a request id
// are given one, which handlers can read with rpc.RequestIDFromContext.
func Logging(log logger.Logger, clock clock.Clock) rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		id, ok := rpc.RequestIDFromContext(ctx)
		if !ok {
			id = xid.New().String()
			ctx = rpc.WithRequestID(ctx, id)
		}

		start := clock.Now()
		log.Tracef("[%s] %s %q started", id, req.Type, req.Path)
		out, err := next(ctx, req)
		elapsed := clock.Now().Sub(start)
		if err != nil {
			log.Infof("[%s] %s %q failed after %v: %v", id, req.Type, req.Path, elapsed, err)
			return out, err
		}
		log.Debugf("[%s] %s %q completed in %v", id, req.Type, req.Path, elapsed)
		return out, nil
	}
}
