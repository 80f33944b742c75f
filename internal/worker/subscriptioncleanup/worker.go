// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package subscriptioncleanup provides the worker that periodically drops
// finished subscription tasks from a manager's bookkeeping.
package subscriptioncleanup

import (
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/dispatch/core/logger"
)

// Reconciler is implemented by the subscription manager.
type Reconciler interface {
	// Reconcile forgets finished tasks and returns how many it forgot.
	Reconcile() int
}

// Config holds configuration required to run the cleanup worker.
type Config struct {
	// Reconciler is the manager being cleaned.
	Reconciler Reconciler

	// Interval is the time between reconciliations.
	Interval time.Duration

	// Clock is used by the worker to create timers.
	Clock clock.Clock

	// Logger logs stuff.
	Logger logger.Logger
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Reconciler == nil {
		return errors.NotValidf("nil Reconciler")
	}
	if config.Interval <= 0 {
		return errors.NotValidf("non-positive Interval")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

type cleanupWorker struct {
	catacomb catacomb.Catacomb
	cfg      Config

	runs       atomic.Uint64
	reconciled atomic.Uint64
}

// NewWorker starts a new cleanup worker based
// on the input configuration and returns it.
// Killing the worker stops the cleanup only; it never
// touches live subscriptions.
func NewWorker(cfg Config) (worker.Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	w := &cleanupWorker{cfg: cfg}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *cleanupWorker) loop() error {
	timer := w.cfg.Clock.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			n := w.cfg.Reconciler.Reconcile()
			w.runs.Add(1)
			w.reconciled.Add(uint64(n))
			if n > 0 {
				w.cfg.Logger.Debugf("reconciled %d finished subscription tasks", n)
			}
			timer.Reset(w.cfg.Interval)
		}
	}
}

// Report returns the worker's counters, for introspection.
func (w *cleanupWorker) Report() map[string]any {
	return map[string]any{
		"interval":   w.cfg.Interval.String(),
		"runs":       w.runs.Load(),
		"reconciled": w.reconciled.Load(),
	}
}

// Kill (worker.Worker) tells the worker to stop and return from its loop.
func (w *cleanupWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait (worker.Worker) waits for the worker to stop,
// and returns the error with which it exited.
func (w *cleanupWorker) Wait() error {
	return w.catacomb.Wait()
}
