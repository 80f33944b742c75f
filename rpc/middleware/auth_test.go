// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware_test

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/dispatch/rpc"
	"github.com/juju/dispatch/rpc/middleware"
)

type authSuite struct {
	jujutesting.IsolationSuite
	router *rpc.Router
}

var _ = gc.Suite(&authSuite{})

var tokens = middleware.Tokens{
	"t-admin": {Name: "alice", Roles: set.NewStrings("admin")},
	"t-user":  {Name: "bob"},
}

func whoami(ctx context.Context, _ any) (string, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return "", errors.New("no identity")
	}
	return id.Name, nil
}

func (s *authSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.router = rpc.NewRouter(rpc.WithContext(middleware.Auth(tokens)))
	c.Assert(s.router.Register("whoami", rpc.Query(whoami)), jc.ErrorIsNil)
	c.Assert(s.router.Register("admin.reset", rpc.Mutation(whoami),
		rpc.WithContext(middleware.Auth(tokens, "admin"))), jc.ErrorIsNil)
}

func (s *authSuite) TestNoToken(c *gc.C) {
	_, err := s.router.Call(context.Background(), "whoami", nil)
	c.Assert(err, jc.ErrorIs, errors.Unauthorized)
	c.Check(err, gc.ErrorMatches, `no credentials for "whoami"`)
}

func (s *authSuite) TestBadToken(c *gc.C) {
	ctx := middleware.WithToken(context.Background(), "t-nobody")
	_, err := s.router.Call(ctx, "whoami", nil)
	c.Assert(err, jc.ErrorIs, errors.Unauthorized)
}

func (s *authSuite) TestIdentityReachesHandler(c *gc.C) {
	ctx := middleware.WithToken(context.Background(), "t-user")
	out, err := s.router.Call(ctx, "whoami", nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(out, gc.Equals, "bob")
}

func (s *authSuite) TestRoleRequired(c *gc.C) {
	ctx := middleware.WithToken(context.Background(), "t-user")
	_, err := s.router.Call(ctx, "admin.reset", nil)
	c.Assert(err, jc.ErrorIs, errors.Forbidden)

	ctx = middleware.WithToken(context.Background(), "t-admin")
	out, err := s.router.Call(ctx, "admin.reset", nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(out, gc.Equals, "alice")
}
