// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/dispatch/rpc"
)

// Timeout bounds queries and mutations to d. When d elapses the handler's
// context is cancelled and the call returns an errors.Timeout error
// without waiting for the handler.
//
// A panic in the handler is raised again on the calling goroutine, where
// an enclosing Recover sees it. One raised after the call has timed out
// is dropped.
//
// Subscriptions pass through untouched: their stream outlives the call
// that opens it, and is bounded by subscription.Context.WithTimeout
// instead.
func Timeout(d time.Duration, clock clock.Clock) rpc.Middleware {
	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		if !req.Type.IsHandler() || d <= 0 {
			return next(ctx, req)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			out      any
			err      error
			panicked any
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{panicked: r}
				}
			}()
			out, err := next(ctx, req)
			done <- result{out: out, err: err}
		}()

		timer := clock.NewTimer(d)
		defer timer.Stop()

		select {
		case r := <-done:
			if r.panicked != nil {
				panic(r.panicked)
			}
			return r.out, r.err
		case <-timer.Chan():
			return nil, errors.Timeoutf("procedure %q after %v", req.Path, d)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
