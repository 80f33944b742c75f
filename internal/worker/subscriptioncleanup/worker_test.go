// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptioncleanup

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/testing"
)

const interval = time.Minute

type workerSuite struct {
	jujutesting.IsolationSuite

	clock      *testclock.Clock
	reconciler *MockReconciler
}

var _ = gc.Suite(&workerSuite{})

func (s *workerSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.reconciler = NewMockReconciler(ctrl)
	s.clock = testclock.NewClock(time.Now())
	return ctrl
}

func (s *workerSuite) config(c *gc.C, reconciler Reconciler) Config {
	return Config{
		Reconciler: reconciler,
		Interval:   interval,
		Clock:      s.clock,
		Logger:     testing.NewCheckLogger(c),
	}
}

func (s *workerSuite) TestValidate(c *gc.C) {
	defer s.setupMocks(c).Finish()

	cfg := s.config(c, s.reconciler)
	c.Check(cfg.Validate(), jc.ErrorIsNil)

	cfg.Reconciler = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.config(c, s.reconciler)
	cfg.Interval = 0
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.config(c, s.reconciler)
	cfg.Clock = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.config(c, s.reconciler)
	cfg.Logger = nil
	_, err := NewWorker(cfg)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *workerSuite) TestReconcilesEveryInterval(c *gc.C) {
	defer s.setupMocks(c).Finish()

	called := make(chan struct{})
	s.reconciler.EXPECT().Reconcile().DoAndReturn(func() int {
		called <- struct{}{}
		return 2
	}).Times(2)

	w, err := NewWorker(s.config(c, s.reconciler))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	for i := 0; i < 2; i++ {
		c.Assert(s.clock.WaitAdvance(interval, testing.LongWait, 1), jc.ErrorIsNil)
		select {
		case <-called:
		case <-time.After(testing.LongWait):
			c.Fatalf("reconcile %d not called", i)
		}
	}

	// The timer is reset after each pass.
	c.Assert(s.clock.WaitAdvance(interval/2, testing.LongWait, 1), jc.ErrorIsNil)
	select {
	case <-called:
		c.Fatalf("reconcile called early")
	case <-time.After(testing.ShortWait):
	}

	report := w.(*cleanupWorker).Report()
	c.Check(report["runs"], gc.Equals, uint64(2))
	c.Check(report["reconciled"], gc.Equals, uint64(4))
}

func (s *workerSuite) TestKillDoesNotReconcile(c *gc.C) {
	defer s.setupMocks(c).Finish()

	w, err := NewWorker(s.config(c, s.reconciler))
	c.Assert(err, jc.ErrorIsNil)
	workertest.CheckAlive(c, w)
	workertest.CleanKill(c, w)
}

func (s *workerSuite) TestCleansManagerWithoutTouchingSubscriptions(c *gc.C) {
	s.clock = testclock.NewClock(time.Now())
	manager, err := subscriptionmanager.NewManager(subscriptionmanager.Config{
		SubscribeTimeout:   time.Second,
		UnsubscribeTimeout: time.Second,
		CleanupInterval:    interval,
		Clock:              s.clock,
		Logger:             testing.NewCheckLogger(c),
	})
	c.Assert(err, jc.ErrorIsNil)

	finished := &subscriptionmanager.Handle{Path: "once"}
	_, err = manager.Subscribe(finished)
	c.Assert(err, jc.ErrorIsNil)
	task, err := manager.Spawn(finished.ID, func(context.Context) error { return nil })
	c.Assert(err, jc.ErrorIsNil)
	workertest.CheckKilled(c, task)

	live := &subscriptionmanager.Handle{Path: "forever"}
	_, err = manager.Subscribe(live)
	c.Assert(err, jc.ErrorIsNil)
	liveTask, err := manager.Spawn(live.ID, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.Assert(err, jc.ErrorIsNil)

	w, err := NewWorker(s.config(c, manager))
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(s.clock.WaitAdvance(interval, testing.LongWait, 1), jc.ErrorIsNil)
	// Wait for the timer to be reset, which happens after the pass.
	c.Assert(s.clock.WaitAdvance(0, testing.LongWait, 1), jc.ErrorIsNil)

	health := manager.Health()
	c.Check(health.ActiveTasks, gc.Equals, 1)
	c.Check(health.CompletedTasks, gc.Equals, uint64(1))
	c.Check(manager.Reconcile(), gc.Equals, 0)

	workertest.CleanKill(c, w)
	workertest.CheckAlive(c, liveTask)
	c.Check(live.Signal.IsCancelled(), jc.IsFalse)
	c.Check(manager.Count(), gc.Equals, 2)

	c.Assert(manager.Shutdown(context.Background()), jc.ErrorIsNil)
}
