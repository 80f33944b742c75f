// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"

	"github.com/juju/dispatch/rpc"
)

// RateLimitConfig holds the configuration of the RateLimit middleware.
type RateLimitConfig struct {
	// Rate is the number of calls admitted per second once the burst is
	// spent.
	Rate float64

	// Burst is the number of calls that can be admitted at once.
	Burst int64

	// Clock refills the bucket. Defaults to the wall clock.
	Clock clock.Clock
}

// Validate ensures the configuration is usable.
func (c RateLimitConfig) Validate() error {
	if c.Rate <= 0 {
		return errors.NotValidf("rate %v", c.Rate)
	}
	if c.Burst <= 0 {
		return errors.NotValidf("burst %d", c.Burst)
	}
	return nil
}

// RateLimit admits calls from a single token bucket shared by every path
// it is installed on. Calls arriving with the bucket empty are rejected
// with an errors.QuotaLimitExceeded error rather than queued.
func RateLimit(cfg RateLimitConfig) (rpc.Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	bucket := ratelimit.NewBucketWithRateAndClock(cfg.Rate, cfg.Burst, bucketClock{cfg.Clock})

	return func(ctx context.Context, req rpc.Request, next rpc.Next) (any, error) {
		if bucket.TakeAvailable(1) == 0 {
			return nil, errors.QuotaLimitExceededf("rate limit for %q", req.Path)
		}
		return next(ctx, req)
	}, nil
}

// bucketClock adapts a clock.Clock to ratelimit.Clock.
type bucketClock struct {
	clock clock.Clock
}

func (c bucketClock) Now() time.Time {
	return c.clock.Now()
}

func (c bucketClock) Sleep(d time.Duration) {
	<-c.clock.After(d)
}
