// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"
	"runtime/debug"

	"github.com/juju/errors"

	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/rpc"
)

// Recover turns a panic further down the chain into an error, so that one
// broken handler cannot take the process down.
func Recover(log logger.Logger) rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("procedure %q panicked: %v\n%s", req.Path, r, debug.Stack())
				out, err = nil, errors.Errorf("procedure %q panicked: %v", req.Path, r)
			}
		}()
		return next(ctx, req)
	}
}
