// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscription_test

import (
	"context"
	"sync"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/core/subscription"
	"github.com/juju/dispatch/testing"
)

type signalSuite struct{}

var _ = gc.Suite(&signalSuite{})

func (*signalSuite) TestCancelIsIdempotent(c *gc.C) {
	s := subscription.NewSignal()
	c.Assert(s.IsCancelled(), jc.IsFalse)

	s.Cancel()
	s.Cancel()
	c.Assert(s.IsCancelled(), jc.IsTrue)

	select {
	case <-s.Done():
	default:
		c.Fatalf("done channel not closed")
	}
}

func (*signalSuite) TestClonesObserveCancel(c *gc.C) {
	s := subscription.NewSignal()
	clone := s

	clone.Cancel()
	c.Assert(s.IsCancelled(), jc.IsTrue)
}

func (*signalSuite) TestWaitAlreadyCancelled(c *gc.C) {
	s := subscription.NewSignal()
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), testing.LongWait)
	defer cancel()
	c.Assert(s.Wait(ctx), jc.ErrorIsNil)
}

func (*signalSuite) TestWaitWakesAllWaiters(c *gc.C) {
	s := subscription.NewSignal()

	const waiters = 20
	var started, finished sync.WaitGroup
	started.Add(waiters)
	finished.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer finished.Done()
			started.Done()
			_ = s.Wait(context.Background())
		}()
	}
	started.Wait()
	s.Cancel()

	done := make(chan struct{})
	go func() {
		finished.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testing.LongWait):
		c.Fatalf("waiters not woken")
	}
}

func (*signalSuite) TestWaitContextDone(c *gc.C) {
	s := subscription.NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(s.Wait(ctx), jc.ErrorIs, context.Canceled)
	c.Assert(s.IsCancelled(), jc.IsFalse)
}

func (*signalSuite) TestConcurrentCancelAndWait(c *gc.C) {
	// A waiter that arrives while Cancel is running must not hang.
	for i := 0; i < 200; i++ {
		s := subscription.NewSignal()
		done := make(chan struct{})
		go func() {
			_ = s.Wait(context.Background())
			close(done)
		}()
		go s.Cancel()
		select {
		case <-done:
		case <-time.After(testing.LongWait):
			c.Fatalf("iteration %d: waiter missed the wakeup", i)
		}
	}
}
