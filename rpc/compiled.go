// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/dispatch/core/subscription"
)

type compiledChain struct {
	next Next
	typ  ProcedureType
}

// CompiledRouter is the frozen form of a Router. Its chains are built once
// and shared by every call; it never changes and is safe for concurrent
// use.
type CompiledRouter struct {
	chains map[string]compiledChain
	paths  []string
}

// Call invokes the query or mutation at path.
func (r *CompiledRouter) Call(ctx context.Context, path string, input any) (any, error) {
	chain, ok := r.chains[path]
	if !ok {
		return nil, procedureNotFound(path)
	}
	return call(ctx, path, chain.typ, chain.next, input)
}

// Subscribe opens the subscription at path. A nil sc gets a fresh
// subscription context.
func (r *CompiledRouter) Subscribe(ctx context.Context, path string, input any, sc *subscription.Context) (Stream, error) {
	chain, ok := r.chains[path]
	if !ok {
		return nil, procedureNotFound(path)
	}
	stream, err := subscribe(ctx, path, chain.typ, chain.next, input, sc)
	return stream, errors.Trace(err)
}

// Procedures returns the sorted registered paths.
func (r *CompiledRouter) Procedures() []string {
	return append([]string(nil), r.paths...)
}

// Procedure returns the type of the procedure registered at path.
func (r *CompiledRouter) Procedure(path string) (ProcedureType, bool) {
	chain, ok := r.chains[path]
	return chain.typ, ok
}
