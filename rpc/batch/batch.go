// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package batch runs a set of independent procedure calls concurrently.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/rpc/params"
)

const (
	// DefaultMaxItems is the batch size limit used when Config.MaxItems
	// is zero.
	DefaultMaxItems = 100

	// DefaultMaxConcurrency is the number of items run at once when
	// Config.MaxConcurrency is zero.
	DefaultMaxConcurrency = 10
)

// Caller is the dispatch entry point items are run against. Both
// *rpc.Router and *rpc.CompiledRouter satisfy it.
type Caller interface {
	Call(ctx context.Context, path string, input any) (any, error)
}

// Item is one call of a batch.
type Item struct {
	// ID is chosen by the client and returned on the item's result.
	ID    string `json:"id"`
	Path  string `json:"path"`
	Input any    `json:"input,omitempty"`
}

// Result is the outcome of one item. Exactly one of Output and Error is
// meaningful.
type Result struct {
	ID     string        `json:"id"`
	Output any           `json:"output,omitempty"`
	Error  *params.Error `json:"error,omitempty"`
}

// Response holds the results of a batch in request order.
type Response struct {
	Results   []Result      `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Config holds the configuration of an Executor.
type Config struct {
	Caller         Caller
	MaxItems       int
	MaxConcurrency int
	Clock          clock.Clock
	Logger         logger.Logger
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.Caller == nil {
		return errors.NotValidf("nil Caller")
	}
	if c.MaxItems < 0 {
		return errors.NotValidf("max items %d", c.MaxItems)
	}
	if c.MaxConcurrency < 0 {
		return errors.NotValidf("max concurrency %d", c.MaxConcurrency)
	}
	return nil
}

// Executor validates and runs batches.
type Executor struct {
	cfg Config
}

// NewExecutor returns an executor with the given configuration.
func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger("rpc.batch")
	}
	return &Executor{cfg: cfg}, nil
}

// Validate checks the structure of a batch without running any of it.
func (e *Executor) Validate(items []Item) error {
	if len(items) == 0 {
		return errors.NotValidf("empty batch")
	}
	if len(items) > e.cfg.MaxItems {
		return errors.NewNotValid(nil, fmt.Sprintf("batch of %d items exceeds limit of %d", len(items), e.cfg.MaxItems))
	}
	seen := set.NewStrings()
	for i, item := range items {
		if item.ID == "" {
			return errors.NotValidf("item %d: empty id", i)
		}
		if seen.Contains(item.ID) {
			return errors.NotValidf("item %d: duplicate id %q", i, item.ID)
		}
		seen.Add(item.ID)
		if item.Path == "" {
			return errors.NotValidf("item %q: empty path", item.ID)
		}
	}
	return nil
}

// Execute validates items and, if the batch is well formed, runs every
// item concurrently. Item errors are reported on their results and never
// affect other items; the returned error is only for a rejected batch.
func (e *Executor) Execute(ctx context.Context, items []Item) (Response, error) {
	if err := e.Validate(items); err != nil {
		return Response{}, errors.Trace(err)
	}

	start := e.cfg.Clock.Now()
	results := make([]Result, len(items))

	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = e.run(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{
		Results:  results,
		Duration: e.cfg.Clock.Now().Sub(start),
	}
	for _, r := range results {
		if r.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	e.cfg.Logger.Debugf("batch of %d items: %d succeeded, %d failed in %v",
		len(items), resp.Succeeded, resp.Failed, resp.Duration)
	return resp, nil
}

func (e *Executor) run(ctx context.Context, item Item) Result {
	out, err := e.cfg.Caller.Call(ctx, item.Path, item.Input)
	if err != nil {
		e.cfg.Logger.Tracef("batch item %q on %q failed: %v", item.ID, item.Path, err)
		return Result{ID: item.ID, Error: params.FromError(err)}
	}
	return Result{ID: item.ID, Output: out}
}
