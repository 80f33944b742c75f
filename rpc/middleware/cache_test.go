// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/rpc"
	"github.com/juju/dispatch/rpc/middleware"
)

type cacheSuite struct {
	jujutesting.IsolationSuite
	clock *testclock.Clock
}

var _ = gc.Suite(&cacheSuite{})

func (s *cacheSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
}

func (s *cacheSuite) newCache(c *gc.C, size int) *middleware.Cache {
	cache, err := middleware.NewCache(middleware.CacheConfig{
		TTL:   time.Minute,
		Size:  size,
		Clock: s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	return cache
}

func (s *cacheSuite) TestValidate(c *gc.C) {
	_, err := middleware.NewCache(middleware.CacheConfig{})
	c.Check(err, jc.ErrorIs, errors.NotValid)
	_, err = middleware.NewCache(middleware.CacheConfig{TTL: time.Second, Size: -1})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *cacheSuite) TestServesRepeatedQuery(c *gc.C) {
	cache := s.newCache(c, 0)
	terminal := &counter{out: float64(3)}

	for i := 0; i < 3; i++ {
		out, err := invoke(cache.Middleware(), addQuery, terminal.next)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(out, gc.Equals, float64(3))
	}
	c.Check(terminal.calls, gc.Equals, 1)
	c.Check(cache.Len(), gc.Equals, 1)

	other := addQuery
	other.Input = map[string]any{"a": 2, "b": 2}
	_, err := invoke(cache.Middleware(), other, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(terminal.calls, gc.Equals, 2)
}

func (s *cacheSuite) TestHitsAreCopies(c *gc.C) {
	cache := s.newCache(c, 0)
	terminal := &counter{out: map[string]any{"items": []any{"a", "b"}}}

	first, err := invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	first.(map[string]any)["items"] = nil

	second, err := invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	second.(map[string]any)["items"].([]any)[0] = "z"

	third, err := invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(third, jc.DeepEquals, map[string]any{"items": []any{"a", "b"}})
	c.Check(terminal.calls, gc.Equals, 1)
}

func (s *cacheSuite) TestExpires(c *gc.C) {
	cache := s.newCache(c, 0)
	terminal := &counter{out: 3}

	_, err := invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	s.clock.Advance(time.Minute)
	_, err = invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(terminal.calls, gc.Equals, 2)
}

func (s *cacheSuite) TestOnlyQueries(c *gc.C) {
	cache := s.newCache(c, 0)
	for _, req := range []rpc.Request{setValue, watch} {
		terminal := &counter{out: "x"}
		for i := 0; i < 2; i++ {
			_, err := invoke(cache.Middleware(), req, terminal.next)
			c.Assert(err, jc.ErrorIsNil)
		}
		c.Check(terminal.calls, gc.Equals, 2, gc.Commentf("%s", req.Path))
	}
	c.Check(cache.Len(), gc.Equals, 0)
}

func (s *cacheSuite) TestErrorsNotCached(c *gc.C) {
	cache := s.newCache(c, 0)
	terminal := &counter{err: errors.NotFoundf("x")}
	for i := 0; i < 2; i++ {
		_, err := invoke(cache.Middleware(), addQuery, terminal.next)
		c.Assert(err, jc.ErrorIs, errors.NotFound)
	}
	c.Check(terminal.calls, gc.Equals, 2)
}

func (s *cacheSuite) TestInvalidate(c *gc.C) {
	cache := s.newCache(c, 0)
	terminal := &counter{out: 3}
	_, err := invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)

	cache.Invalidate("math")
	c.Check(cache.Len(), gc.Equals, 1)
	cache.Invalidate("math.add")
	c.Check(cache.Len(), gc.Equals, 0)

	_, err = invoke(cache.Middleware(), addQuery, terminal.next)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(terminal.calls, gc.Equals, 2)

	cache.Purge()
	c.Check(cache.Len(), gc.Equals, 0)
}

func (s *cacheSuite) TestEvictsLeastRecentlyUsed(c *gc.C) {
	cache := s.newCache(c, 1)
	terminal := &counter{out: 3}
	other := addQuery
	other.Path = "math.mul"

	for _, req := range []rpc.Request{addQuery, other, addQuery} {
		_, err := invoke(cache.Middleware(), req, terminal.next)
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Check(terminal.calls, gc.Equals, 3)
	c.Check(cache.Len(), gc.Equals, 1)
}
