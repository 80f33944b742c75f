// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import (
	"context"

	"github.com/juju/errors"
)

// Next is the rest of the pipeline from the point of view of a middleware.
type Next func(ctx context.Context, req Request) (any, error)

// Middleware wraps a call. It may act before and after calling next, or
// return without calling it at all, in which case nothing further down the
// chain runs.
type Middleware func(ctx context.Context, req Request, next Next) (any, error)

// ContextFunc derives the context a procedure runs with. Returning an
// error rejects the call before the procedure or its own middleware run.
type ContextFunc func(ctx context.Context, req Request) (context.Context, error)

// BuildChain composes middleware around terminal. The first middleware is
// the outermost: it runs first on the way in and last on the way out.
//
// The chain is built from closures only, so a single chain may be invoked
// concurrently.
func BuildChain(middleware []Middleware, terminal Next) Next {
	next := terminal
	for i := len(middleware) - 1; i >= 0; i-- {
		m, inner := middleware[i], next
		next = func(ctx context.Context, req Request) (any, error) {
			return m(ctx, req, inner)
		}
	}
	return next
}

// contextStep turns a context transform into a middleware.
func contextStep(fn ContextFunc) Middleware {
	return func(ctx context.Context, req Request, next Next) (any, error) {
		ctx, err := fn(ctx, req)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return next(ctx, req)
	}
}
