// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/core/subscription"
	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/testing"
)

type managerSuite struct {
	baseSuite
}

var _ = gc.Suite(&managerSuite{})

func (s *managerSuite) TestConfigValidate(c *gc.C) {
	c.Check(subscriptionmanager.DefaultConfig().Validate(), jc.ErrorIsNil)

	for i, mutate := range []func(*subscriptionmanager.Config){
		func(cfg *subscriptionmanager.Config) { cfg.SubscribeTimeout = 0 },
		func(cfg *subscriptionmanager.Config) { cfg.UnsubscribeTimeout = -time.Second },
		func(cfg *subscriptionmanager.Config) { cfg.CleanupInterval = 0 },
		func(cfg *subscriptionmanager.Config) { cfg.Clock = nil },
		func(cfg *subscriptionmanager.Config) { cfg.Logger = nil },
	} {
		c.Logf("test %d", i)
		cfg := s.config(c)
		mutate(&cfg)
		_, err := subscriptionmanager.NewManager(cfg)
		c.Check(err, jc.ErrorIs, errors.NotValid)
	}
}

func (s *managerSuite) TestSubscribeFillsHandle(c *gc.C) {
	h := s.subscribe(c, "counter")

	c.Check(h.ID.IsZero(), jc.IsFalse)
	c.Check(h.Signal, gc.NotNil)
	c.Check(h.Created, gc.Equals, s.clock.Now())

	got, ok := s.manager.Get(h.ID)
	c.Assert(ok, jc.IsTrue)
	c.Check(got.Path, gc.Equals, "counter")
	c.Check(s.manager.Count(), gc.Equals, 1)
}

func (s *managerSuite) TestSubscribeFromContext(c *gc.C) {
	sc := subscription.NewContext()
	id, err := s.manager.Subscribe(subscriptionmanager.NewHandle("ticks", sc))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(id, gc.Equals, sc.ID())

	c.Assert(s.manager.Unsubscribe(id), jc.IsTrue)
	c.Check(sc.IsCancelled(), jc.IsTrue)
}

func (s *managerSuite) TestSubscribeDuplicate(c *gc.C) {
	h := s.subscribe(c, "counter")
	_, err := s.manager.Subscribe(&subscriptionmanager.Handle{ID: h.ID})
	c.Check(err, jc.ErrorIs, errors.AlreadyExists)
	c.Check(s.manager.Metrics().Created, gc.Equals, uint64(1))
}

func (s *managerSuite) TestSubscribeThenCancel(c *gc.C) {
	h := s.subscribe(c, "counter")
	s.clock.Advance(5 * time.Second)

	c.Assert(s.manager.Unsubscribe(h.ID), jc.IsTrue)
	c.Check(h.Signal.IsCancelled(), jc.IsTrue)
	c.Check(s.manager.Count(), gc.Equals, 0)

	metrics := s.manager.Metrics()
	c.Check(metrics, gc.DeepEquals, subscriptionmanager.MetricsSnapshot{
		Created:       1,
		Cancelled:     1,
		TotalDuration: 5 * time.Second,
	})
	c.Check(metrics.AverageDuration(), gc.Equals, 5*time.Second)
}

func (s *managerSuite) TestUnsubscribeUnknown(c *gc.C) {
	h := s.subscribe(c, "counter")
	c.Assert(s.manager.Unsubscribe(h.ID), jc.IsTrue)
	c.Check(s.manager.Unsubscribe(h.ID), jc.IsFalse)
	c.Check(s.manager.Unsubscribe(subscription.NewID()), jc.IsFalse)

	err := s.manager.UnsubscribeWithTimeout(context.Background(), h.ID)
	c.Check(err, jc.ErrorIs, errors.NotFound)
	c.Check(s.manager.Metrics().Cancelled, gc.Equals, uint64(1))
}

func (s *managerSuite) TestComplete(c *gc.C) {
	h := s.subscribe(c, "counter")
	c.Assert(s.manager.Complete(h.ID), jc.IsTrue)
	c.Check(s.manager.Complete(h.ID), jc.IsFalse)

	metrics := s.manager.Metrics()
	c.Check(metrics.Completed, gc.Equals, uint64(1))
	c.Check(metrics.Cancelled, gc.Equals, uint64(0))
	c.Check(metrics.Active, gc.Equals, int64(0))
}

func (s *managerSuite) TestCancelAll(c *gc.C) {
	var handles []*subscriptionmanager.Handle
	for i := 0; i < 10; i++ {
		handles = append(handles, s.subscribe(c, "counter"))
	}
	before := s.manager.Count()

	c.Check(s.manager.CancelAll(), gc.Equals, before)
	c.Check(s.manager.Count(), gc.Equals, 0)
	c.Check(s.manager.Metrics().Cancelled, gc.Equals, uint64(before))
	for _, h := range handles {
		c.Check(h.Signal.IsCancelled(), jc.IsTrue)
	}
	c.Check(s.manager.CancelAll(), gc.Equals, 0)
}

func (s *managerSuite) TestIDsAreOrdered(c *gc.C) {
	a := s.subscribe(c, "a")
	time.Sleep(2 * time.Millisecond)
	b := s.subscribe(c, "b")

	c.Check(s.manager.IDs(), jc.DeepEquals, []subscription.ID{a.ID, b.ID})
}

func (s *managerSuite) TestConcurrentRegistrationKeepsGaugeConsistent(c *gc.C) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &subscriptionmanager.Handle{Path: "counter"}
			if _, err := s.manager.Subscribe(h); err != nil {
				return
			}
			if i%2 == 0 {
				s.manager.Unsubscribe(h.ID)
			}
		}()
	}
	wg.Wait()

	health := s.manager.Health()
	c.Check(health.Healthy, jc.IsTrue)
	c.Check(health.ActiveSubscriptions, gc.Equals, 25)
	c.Check(s.manager.Metrics().Active, gc.Equals, int64(25))
	c.Check(s.manager.Metrics().Created, gc.Equals, uint64(50))
}

func (s *managerSuite) TestSubscribeWithTimeout(c *gc.C) {
	h := &subscriptionmanager.Handle{Path: "counter"}
	id, err := s.manager.SubscribeWithTimeout(context.Background(), h)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(id, gc.Equals, h.ID)

	err = s.manager.UnsubscribeWithTimeout(context.Background(), id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.manager.Count(), gc.Equals, 0)
}

func (s *managerSuite) TestSubscribeWithTimeoutTimesOut(c *gc.C) {
	release := subscriptionmanager.HoldLock(s.manager)

	done := make(chan error, 1)
	go func() {
		_, err := s.manager.SubscribeWithTimeout(context.Background(), &subscriptionmanager.Handle{})
		done <- err
	}()
	c.Assert(s.clock.WaitAdvance(time.Second, testing.LongWait, 1), jc.ErrorIsNil)

	select {
	case err := <-done:
		c.Check(err, jc.ErrorIs, errors.Timeout)
	case <-time.After(testing.LongWait):
		c.Fatalf("subscribe did not time out")
	}

	release()
	c.Check(s.manager.Count(), gc.Equals, 0)
	c.Check(s.manager.Metrics().Created, gc.Equals, uint64(0))
}

func (s *managerSuite) TestUnsubscribeWithTimeoutTimesOut(c *gc.C) {
	h := s.subscribe(c, "counter")
	release := subscriptionmanager.HoldLock(s.manager)

	done := make(chan error, 1)
	go func() {
		done <- s.manager.UnsubscribeWithTimeout(context.Background(), h.ID)
	}()
	c.Assert(s.clock.WaitAdvance(time.Second, testing.LongWait, 1), jc.ErrorIsNil)

	select {
	case err := <-done:
		c.Check(err, jc.ErrorIs, errors.Timeout)
	case <-time.After(testing.LongWait):
		c.Fatalf("unsubscribe did not time out")
	}

	release()
	c.Check(s.manager.Count(), gc.Equals, 1)
	c.Check(h.Signal.IsCancelled(), jc.IsFalse)
}

func (s *managerSuite) TestSubscribeWithTimeoutWaitsForLock(c *gc.C) {
	release := subscriptionmanager.HoldLock(s.manager)

	done := make(chan error, 1)
	go func() {
		_, err := s.manager.SubscribeWithTimeout(context.Background(), &subscriptionmanager.Handle{})
		done <- err
	}()
	c.Assert(s.clock.WaitAdvance(500*time.Millisecond, testing.LongWait, 1), jc.ErrorIsNil)
	release()

	select {
	case err := <-done:
		c.Check(err, jc.ErrorIsNil)
	case <-time.After(testing.LongWait):
		c.Fatalf("subscribe did not complete")
	}
	c.Check(s.manager.Count(), gc.Equals, 1)
}

func (s *managerSuite) TestSubscribeWithTimeoutContextDone(c *gc.C) {
	release := subscriptionmanager.HoldLock(s.manager)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.manager.SubscribeWithTimeout(ctx, &subscriptionmanager.Handle{})
	c.Check(err, jc.ErrorIs, context.Canceled)
}

func (s *managerSuite) TestHealth(c *gc.C) {
	s.subscribe(c, "counter")
	s.clock.Advance(time.Hour)

	health := s.manager.Health()
	c.Check(health, jc.DeepEquals, subscriptionmanager.Health{
		ActiveSubscriptions: 1,
		Uptime:              time.Hour,
		Healthy:             true,
	})

	report := s.manager.Report()
	c.Check(report["active-subscriptions"], gc.Equals, 1)
	c.Check(report["created"], gc.Equals, uint64(1))
}

func (s *managerSuite) TestShutdownRefusesRegistration(c *gc.C) {
	h := s.subscribe(c, "counter")

	err := s.manager.Shutdown(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h.Signal.IsCancelled(), jc.IsTrue)
	c.Check(s.manager.Count(), gc.Equals, 0)
	c.Check(s.manager.Health().ShutDown, jc.IsTrue)

	_, err = s.manager.Subscribe(&subscriptionmanager.Handle{})
	c.Check(err, jc.ErrorIs, subscriptionmanager.ErrManagerShutdown)
	_, err = s.manager.SubscribeWithTimeout(context.Background(), &subscriptionmanager.Handle{})
	c.Check(err, jc.ErrorIs, subscriptionmanager.ErrManagerShutdown)

	c.Check(s.manager.Shutdown(context.Background()), jc.ErrorIsNil)
}
