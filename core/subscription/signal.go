// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscription

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a one-shot cancellation flag shared by a subscription's
// producer and everyone who may want to stop it. Copies of the pointer are
// the clones: cancelling through any of them is seen by all.
//
// Once cancelled a Signal stays cancelled.
type Signal struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewSignal returns a signal that has not been cancelled.
func NewSignal() *Signal {
	return &Signal{
		done: make(chan struct{}),
	}
}

// Cancel sets the flag and wakes every waiter. Calling it more than once is
// harmless.
func (s *Signal) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
	})
}

// IsCancelled reports whether Cancel has been called. It never blocks.
func (s *Signal) IsCancelled() bool {
	return s.cancelled.Load()
}

// Done returns a channel that is closed when the signal is cancelled.
// The channel exists from construction, so a waiter that selects on it
// after a concurrent Cancel still observes the close.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the signal is cancelled or the context is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
