// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package rpc dispatches named procedure calls through a middleware
// pipeline to typed handlers.
//
// A Router is built up with Register, Use and Merge, and can serve calls
// while it is being built. Compile freezes it into a CompiledRouter, which
// builds each procedure's middleware chain once and reuses it for every
// call.
//
// For each call the chain runs, outermost first:
//
//	router middleware
//	router context transform
//	procedure context transform
//	procedure middleware
//	handler
//
// Procedures merged from another router keep that router's middleware and
// context transform between the outer router's and their own.
package rpc

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/core/subscription"
)

var routerLogger = logger.GetLogger("rpc")

// Option configures a router, or a single procedure on Register.
type Option func(*options)

type options struct {
	middleware []Middleware
	transform  ContextFunc
}

// WithMiddleware appends middleware.
func WithMiddleware(m ...Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithContext sets the context transform.
func WithContext(fn ContextFunc) Option {
	return func(o *options) {
		o.transform = fn
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// chain returns the middleware of o, with the context transform first.
func (o options) chain() []Middleware {
	var chain []Middleware
	if o.transform != nil {
		chain = append(chain, contextStep(o.transform))
	}
	return append(chain, o.middleware...)
}

// outer returns the middleware of o, with the context transform last.
func (o options) outer() []Middleware {
	chain := append([]Middleware(nil), o.middleware...)
	if o.transform != nil {
		chain = append(chain, contextStep(o.transform))
	}
	return chain
}

type entry struct {
	procedure Procedure

	// middleware is everything between the owning router's middleware
	// and the handler.
	middleware []Middleware
}

// Router is the mutable procedure registry. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	opts     options
	entries  map[string]entry
	compiled *CompiledRouter
}

// NewRouter returns an empty router. WithMiddleware and WithContext apply
// to every procedure of the router.
func NewRouter(opts ...Option) *Router {
	return &Router{
		opts:    newOptions(opts),
		entries: make(map[string]entry),
	}
}

// Use appends router middleware.
func (r *Router) Use(m ...Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled != nil {
		return ErrRouterCompiled
	}
	r.opts.middleware = append(r.opts.middleware, m...)
	return nil
}

// Register binds a procedure to path.
func (r *Router) Register(path string, p Procedure, opts ...Option) error {
	if path == "" {
		return errors.NotValidf("empty procedure path")
	}
	if p == nil {
		return errors.NotValidf("nil procedure for %q", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled != nil {
		return ErrRouterCompiled
	}
	if _, ok := r.entries[path]; ok {
		return errors.AlreadyExistsf("procedure %q", path)
	}
	r.entries[path] = entry{
		procedure:  p,
		middleware: newOptions(opts).chain(),
	}
	return nil
}

// Merge registers every procedure of other under "prefix.path". The
// middleware and context transform of other, as they are now, run inside
// this router's middleware for those procedures. No procedure is merged if
// any of the resulting paths is already taken.
func (r *Router) Merge(prefix string, other *Router) error {
	if prefix == "" || strings.HasSuffix(prefix, ".") {
		return errors.NotValidf("merge prefix %q", prefix)
	}
	if other == r {
		return errors.NotValidf("merging a router into itself")
	}

	other.mu.RLock()
	inner := other.opts.outer()
	merged := make(map[string]entry, len(other.entries))
	for path, e := range other.entries {
		middleware := make([]Middleware, 0, len(inner)+len(e.middleware))
		middleware = append(middleware, inner...)
		middleware = append(middleware, e.middleware...)
		merged[prefix+"."+path] = entry{
			procedure:  e.procedure,
			middleware: middleware,
		}
	}
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled != nil {
		return ErrRouterCompiled
	}
	for path := range merged {
		if _, ok := r.entries[path]; ok {
			return errors.AlreadyExistsf("procedure %q", path)
		}
	}
	for path, e := range merged {
		r.entries[path] = e
	}
	return nil
}

// Procedures returns the sorted registered paths.
func (r *Router) Procedures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := set.NewStrings()
	for path := range r.entries {
		paths.Add(path)
	}
	return paths.SortedValues()
}

// Procedure returns the type of the procedure registered at path.
func (r *Router) Procedure(path string) (ProcedureType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[path]
	if !ok {
		return 0, false
	}
	return e.procedure.Type(), true
}

// Call invokes the query or mutation at path.
func (r *Router) Call(ctx context.Context, path string, input any) (any, error) {
	next, typ, err := r.lookup(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return call(ctx, path, typ, next, input)
}

// Subscribe opens the subscription at path. A nil sc gets a fresh
// subscription context.
func (r *Router) Subscribe(ctx context.Context, path string, input any, sc *subscription.Context) (Stream, error) {
	next, typ, err := r.lookup(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return subscribe(ctx, path, typ, next, input, sc)
}

// Compile freezes the router and builds every chain. Later calls return
// the same compiled router.
func (r *Router) Compile() (*CompiledRouter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled != nil {
		return r.compiled, nil
	}

	chains := make(map[string]compiledChain, len(r.entries))
	paths := set.NewStrings()
	for path, e := range r.entries {
		chains[path] = compiledChain{
			next: r.buildLocked(e),
			typ:  e.procedure.Type(),
		}
		paths.Add(path)
	}
	r.compiled = &CompiledRouter{
		chains: chains,
		paths:  paths.SortedValues(),
	}
	routerLogger.Debugf("compiled %d procedures", len(chains))
	return r.compiled, nil
}

func (r *Router) lookup(path string) (Next, ProcedureType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[path]
	if !ok {
		return nil, 0, procedureNotFound(path)
	}
	return r.buildLocked(e), e.procedure.Type(), nil
}

func (r *Router) buildLocked(e entry) Next {
	outer := r.opts.outer()
	middleware := make([]Middleware, 0, len(outer)+len(e.middleware))
	middleware = append(middleware, outer...)
	middleware = append(middleware, e.middleware...)
	return BuildChain(middleware, terminal(e.procedure))
}

func terminal(p Procedure) Next {
	return func(ctx context.Context, req Request) (any, error) {
		return p.invoke(ctx, req.Input)
	}
}

func call(ctx context.Context, path string, typ ProcedureType, next Next, input any) (any, error) {
	if !typ.IsHandler() {
		return nil, typeMismatch(path, typ, TypeQuery)
	}
	result, err := next(ctx, Request{Path: path, Type: typ, Input: input})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

func subscribe(ctx context.Context, path string, typ ProcedureType, next Next, input any, sc *subscription.Context) (Stream, error) {
	if typ != TypeSubscription {
		return nil, typeMismatch(path, typ, TypeSubscription)
	}
	if sc == nil {
		sc = subscription.NewContext()
	}

	ctx, cancel := sc.Context(subscription.WithContext(ctx, sc))
	result, err := next(ctx, Request{Path: path, Type: typ, Input: input})
	if err != nil {
		cancel()
		return nil, errors.Trace(err)
	}
	stream, ok := result.(Stream)
	if !ok {
		cancel()
		return nil, errors.Errorf("subscription %q produced %T, not a stream", path, result)
	}

	// Relay so that the derived context is released when the stream ends
	// on its own.
	out := make(chan event.Event[any])
	go func() {
		defer cancel()
		defer close(out)
		for ev := range stream {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
