// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

const (
	// ErrCancelled is the cause attached to a context derived from a
	// subscription whose signal was cancelled.
	ErrCancelled = errors.ConstError("subscription cancelled")

	// ErrTimedOut is the cause attached to a context derived from a
	// subscription whose timeout elapsed.
	ErrTimedOut = errors.ConstError("subscription timed out")
)

// Outcome reports why CancelledOrTimeout returned.
type Outcome int

const (
	// Cancelled means the signal fired, or the waiting caller went away.
	Cancelled Outcome = iota + 1
	// TimedOut means the configured timeout elapsed first.
	TimedOut
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// Context is the per-subscription handle given to a subscription handler.
// The With* methods configure it and must only be used before the context
// is handed to a handler; afterwards it changes only through its Signal.
type Context struct {
	id          ID
	lastEventID string
	signal      *Signal
	timeout     time.Duration
	clock       clock.Clock

	armOnce  sync.Once
	deadline time.Time
}

// NewContext returns a context with a fresh id and signal and no timeout.
func NewContext() *Context {
	return &Context{
		id:     NewID(),
		signal: NewSignal(),
		clock:  clock.WallClock,
	}
}

// WithLastEventID sets the resumption token supplied by the caller.
func (c *Context) WithLastEventID(id string) *Context {
	c.lastEventID = id
	return c
}

// WithTimeout bounds the lifetime of the subscription. A zero or negative
// duration means no timeout.
func (c *Context) WithTimeout(d time.Duration) *Context {
	c.timeout = d
	return c
}

// WithSignal shares an existing signal with this context.
func (c *Context) WithSignal(s *Signal) *Context {
	c.signal = s
	return c
}

// WithClock replaces the clock used to measure the timeout.
func (c *Context) WithClock(clk clock.Clock) *Context {
	c.clock = clk
	return c
}

// ID returns the subscription id.
func (c *Context) ID() ID {
	return c.id
}

// LastEventID returns the resumption token, if the caller supplied one.
func (c *Context) LastEventID() (string, bool) {
	return c.lastEventID, c.lastEventID != ""
}

// Timeout returns the configured timeout, if any.
func (c *Context) Timeout() (time.Duration, bool) {
	return c.timeout, c.timeout > 0
}

// Signal returns the shared cancellation signal.
func (c *Context) Signal() *Signal {
	return c.signal
}

// Cancel cancels the subscription's signal.
func (c *Context) Cancel() {
	c.signal.Cancel()
}

// IsCancelled reports whether the subscription's signal has fired.
func (c *Context) IsCancelled() bool {
	return c.signal.IsCancelled()
}

// CancelledOrTimeout blocks until the signal fires or the timeout elapses
// and reports which happened first. The timeout is measured from the first
// call, and shared by later calls. A signal that is already cancelled
// always wins. If ctx is done first the caller is gone, which is reported
// as Cancelled.
func (c *Context) CancelledOrTimeout(ctx context.Context) Outcome {
	if c.signal.IsCancelled() {
		return Cancelled
	}
	if c.timeout <= 0 {
		select {
		case <-c.signal.Done():
		case <-ctx.Done():
		}
		return Cancelled
	}

	remaining := c.arm().Sub(c.clock.Now())
	if remaining <= 0 {
		return TimedOut
	}
	timer := c.clock.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-c.signal.Done():
		return Cancelled
	case <-ctx.Done():
		return Cancelled
	case <-timer.Chan():
		// Both may be ready; cancellation takes precedence.
		if c.signal.IsCancelled() {
			return Cancelled
		}
		return TimedOut
	}
}

// Context derives a context.Context that is cancelled when the signal
// fires or the timeout elapses. context.Cause reports ErrCancelled or
// ErrTimedOut accordingly.
func (c *Context) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		switch c.CancelledOrTimeout(ctx) {
		case TimedOut:
			cancel(ErrTimedOut)
		default:
			cancel(ErrCancelled)
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

func (c *Context) arm() time.Time {
	c.armOnce.Do(func() {
		c.deadline = c.clock.Now().Add(c.timeout)
	})
	return c.deadline
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying the subscription context.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext returns the subscription context carried by ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(contextKey{}).(*Context)
	return sc, ok
}
