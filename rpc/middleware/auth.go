// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package middleware

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/dispatch/rpc"
)

// Identity is the authenticated caller of a procedure.
type Identity struct {
	Name  string
	Roles set.Strings
}

// HasRole reports whether the identity holds role.
func (i Identity) HasRole(role string) bool {
	return i.Roles.Contains(role)
}

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Tokens is a static Authenticator keyed by token.
type Tokens map[string]Identity

// Authenticate implements Authenticator.
func (t Tokens) Authenticate(_ context.Context, token string) (Identity, error) {
	id, ok := t[token]
	if !ok {
		return Identity{}, errors.Unauthorizedf("invalid token")
	}
	return id, nil
}

type tokenKey struct{}

type identityKey struct{}

// WithToken returns a context carrying the caller's token. The host
// attaches it before calling into the router.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// IdentityFromContext returns the identity established by Auth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Auth is a context transform that authenticates the token on the context
// and replaces it with the caller's Identity. If roles are given the
// identity must hold at least one of them.
func Auth(auth Authenticator, roles ...string) rpc.ContextFunc {
	required := set.NewStrings(roles...)
	return func(ctx context.Context, req rpc.Request) (context.Context, error) {
		token, _ := ctx.Value(tokenKey{}).(string)
		if token == "" {
			return nil, errors.Unauthorizedf("no credentials for %q", req.Path)
		}
		id, err := auth.Authenticate(ctx, token)
		if err != nil {
			return nil, errors.Annotatef(err, "authenticating %q", req.Path)
		}
		if !required.IsEmpty() && required.Intersection(id.Roles).IsEmpty() {
			return nil, errors.Forbiddenf("%q for %s", req.Path, id.Name)
		}
		return context.WithValue(ctx, identityKey{}, id), nil
	}
}
