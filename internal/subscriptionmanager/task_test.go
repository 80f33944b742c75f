// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager_test

import (
	"context"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/core/subscription"
	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/testing"
)

type taskSuite struct {
	baseSuite
}

var _ = gc.Suite(&taskSuite{})

func waitUntilContextDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *taskSuite) waitDead(c *gc.C, t *subscriptionmanager.Task) {
	select {
	case <-t.Dead():
	case <-time.After(testing.LongWait):
		c.Fatalf("task %s still running", t.ID())
	}
}

func (s *taskSuite) TestSpawnUnknown(c *gc.C) {
	_, err := s.manager.Spawn(subscription.NewID(), waitUntilContextDone)
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *taskSuite) TestTaskStopsOnUnsubscribe(c *gc.C) {
	h := s.subscribe(c, "counter")
	task, err := s.manager.Spawn(h.ID, waitUntilContextDone)
	c.Assert(err, jc.ErrorIsNil)

	got, _ := s.manager.Get(h.ID)
	c.Check(got.Task, gc.Equals, task)
	c.Check(s.manager.Health().ActiveTasks, gc.Equals, 1)

	c.Assert(s.manager.Unsubscribe(h.ID), jc.IsTrue)
	s.waitDead(c, task)
	c.Check(task.Wait(), jc.ErrorIsNil)

	health := s.manager.Health()
	c.Check(health.ActiveTasks, gc.Equals, 0)
	c.Check(health.CompletedTasks, gc.Equals, uint64(1))

	c.Check(s.manager.Reconcile(), gc.Equals, 1)
	c.Check(s.manager.Reconcile(), gc.Equals, 0)
	c.Check(s.manager.Health().CompletedTasks, gc.Equals, uint64(1))
}

func (s *taskSuite) TestTaskIsAWorker(c *gc.C) {
	h := s.subscribe(c, "counter")
	task, err := s.manager.Spawn(h.ID, waitUntilContextDone)
	c.Assert(err, jc.ErrorIsNil)

	workertest.CheckAlive(c, task)
	workertest.CleanKill(c, task)

	// Killing the task leaves the subscription registered.
	c.Check(s.manager.Count(), gc.Equals, 1)
	c.Check(h.Signal.IsCancelled(), jc.IsFalse)
}

func (s *taskSuite) TestTaskError(c *gc.C) {
	h := s.subscribe(c, "counter")
	task, err := s.manager.Spawn(h.ID, func(context.Context) error {
		return errors.New("boom")
	})
	c.Assert(err, jc.ErrorIsNil)

	s.waitDead(c, task)
	c.Check(task.Wait(), gc.ErrorMatches, "boom")
	c.Check(task.Finished(), jc.IsTrue)
}

func (s *taskSuite) TestTaskReturnsNormally(c *gc.C) {
	h := s.subscribe(c, "counter")
	task, err := s.manager.Spawn(h.ID, func(context.Context) error {
		return nil
	})
	c.Assert(err, jc.ErrorIsNil)

	s.waitDead(c, task)
	c.Check(task.Wait(), jc.ErrorIsNil)
	c.Check(h.Signal.IsCancelled(), jc.IsFalse)
}

func (s *taskSuite) TestReconcileLeavesLiveSubscriptions(c *gc.C) {
	h := s.subscribe(c, "counter")
	task, err := s.manager.Spawn(h.ID, waitUntilContextDone)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(s.manager.Reconcile(), gc.Equals, 0)
	c.Check(task.Finished(), jc.IsFalse)
	c.Check(h.Signal.IsCancelled(), jc.IsFalse)
	c.Check(s.manager.Count(), gc.Equals, 1)

	workertest.CleanKill(c, task)
}

func (s *taskSuite) TestShutdownWaitsForTasks(c *gc.C) {
	var tasks []*subscriptionmanager.Task
	for i := 0; i < 5; i++ {
		h := s.subscribe(c, "counter")
		task, err := s.manager.Spawn(h.ID, waitUntilContextDone)
		c.Assert(err, jc.ErrorIsNil)
		tasks = append(tasks, task)
	}

	err := s.manager.Shutdown(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	for _, task := range tasks {
		c.Check(task.Finished(), jc.IsTrue)
	}

	health := s.manager.Health()
	c.Check(health.ActiveSubscriptions, gc.Equals, 0)
	c.Check(health.ActiveTasks, gc.Equals, 0)
	c.Check(health.CompletedTasks, gc.Equals, uint64(5))
	c.Check(s.manager.Metrics().Cancelled, gc.Equals, uint64(5))
}

func (s *taskSuite) TestShutdownGivesUpOnStuckTask(c *gc.C) {
	h := s.subscribe(c, "counter")
	unblock := make(chan struct{})
	task, err := s.manager.Spawn(h.ID, func(context.Context) error {
		<-unblock
		return nil
	})
	c.Assert(err, jc.ErrorIsNil)

	ctx, cancel := context.WithTimeout(context.Background(), testing.ShortWait)
	defer cancel()
	err = s.manager.Shutdown(ctx)
	c.Check(err, jc.ErrorIs, context.DeadlineExceeded)

	_, err = s.manager.Spawn(h.ID, waitUntilContextDone)
	c.Check(err, jc.ErrorIs, subscriptionmanager.ErrManagerShutdown)

	close(unblock)
	s.waitDead(c, task)
	c.Check(s.manager.Shutdown(context.Background()), jc.ErrorIsNil)
}
