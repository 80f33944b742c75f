// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub_test

import (
	"context"
	"sync"

	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/pubsub"
)

type batchSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&batchSuite{})

func events(values ...int) []event.Event[int] {
	out := make([]event.Event[int], len(values))
	for i, v := range values {
		out[i] = event.New(v)
	}
	return out
}

func (s *batchSuite) TestEmptyBatch(c *gc.C) {
	pub := newPublisher(c, 4, pubsub.DropOldest)

	result := pub.PublishBatch(context.Background(), nil)
	c.Check(result, gc.DeepEquals, pubsub.BatchResult{})
	c.Check(result.SuccessRate(), gc.Equals, 0.0)
	c.Check(result.IsCompleteSuccess(), jc.IsFalse)
	c.Check(result.IsCompleteFailure(), jc.IsFalse)
	c.Check(result.IsPartialSuccess(), jc.IsFalse)
}

func (s *batchSuite) TestCompleteSuccess(c *gc.C) {
	pub := newPublisher(c, 4, pubsub.DropOldest)
	sub, err := pub.Subscribe()
	c.Assert(err, jc.ErrorIsNil)

	result := pub.PublishBatch(context.Background(), events(1, 2, 3))
	c.Check(result, gc.DeepEquals, pubsub.BatchResult{Total: 3, Succeeded: 3})
	c.Check(result.SuccessRate(), gc.Equals, 1.0)
	c.Check(result.IsCompleteSuccess(), jc.IsTrue)
	c.Check(sub.Pending(), gc.Equals, 3)
}

func (s *batchSuite) TestNoSubscribersIsCompleteFailure(c *gc.C) {
	pub := newPublisher(c, 4, pubsub.DropOldest)

	result := pub.PublishBatch(context.Background(), events(1, 2))
	c.Check(result, gc.DeepEquals, pubsub.BatchResult{Total: 2, Failed: 2})
	c.Check(result.IsCompleteFailure(), jc.IsTrue)
}

func (s *batchSuite) TestPartialSuccess(c *gc.C) {
	pub := newPublisher(c, 2, pubsub.Error)
	_, err := pub.Subscribe()
	c.Assert(err, jc.ErrorIsNil)

	result := pub.PublishBatch(context.Background(), events(1, 2, 3, 4))
	c.Check(result, gc.DeepEquals, pubsub.BatchResult{Total: 4, Succeeded: 2, Failed: 2})
	c.Check(result.SuccessRate(), gc.Equals, 0.5)
	c.Check(result.IsPartialSuccess(), jc.IsTrue)
}

func (s *batchSuite) TestSubscriberJoiningMidBatch(c *gc.C) {
	pub := newPublisher(c, 1024, pubsub.DropOldest)
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pub.Subscribe()
	}()
	values := make([]int, total)
	result := pub.PublishBatch(context.Background(), events(values...))
	wg.Wait()

	c.Check(result.Total, gc.Equals, total)
	c.Check(result.Succeeded+result.Failed, gc.Equals, total)
	c.Check(result.SuccessRate(), gc.Equals, float64(result.Succeeded)/total)
}
