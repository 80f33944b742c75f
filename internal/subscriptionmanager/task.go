// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"gopkg.in/tomb.v2"

	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/core/subscription"
)

// TaskFunc is the body of a background task. The context is cancelled when
// the subscription's signal fires or the task is killed.
type TaskFunc func(ctx context.Context) error

// Task is a background goroutine bound to a subscription's signal.
type Task struct {
	id   subscription.ID
	tomb tomb.Tomb
}

var _ worker.Worker = (*Task)(nil)

func startTask(id subscription.ID, signal *subscription.Signal, fn TaskFunc, logger logger.Logger) *Task {
	t := &Task{id: id}
	t.tomb.Go(func() error {
		t.tomb.Go(func() error {
			select {
			case <-signal.Done():
				t.tomb.Kill(nil)
			case <-t.tomb.Dying():
			}
			return nil
		})

		ctx := t.tomb.Context(context.Background())
		err := fn(ctx)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Stopped as asked.
			err = nil
		}
		if err != nil {
			logger.Errorf("subscription %s task: %v", id, err)
			return errors.Trace(err)
		}
		t.tomb.Kill(nil)
		return nil
	})
	return t
}

// ID returns the subscription the task belongs to.
func (t *Task) ID() subscription.ID {
	return t.id
}

// Kill asks the task to stop.
func (t *Task) Kill() {
	t.tomb.Kill(nil)
}

// Wait blocks until the task has stopped and returns its error.
func (t *Task) Wait() error {
	return t.tomb.Wait()
}

// Dead returns a channel that is closed once the task has stopped.
func (t *Task) Dead() <-chan struct{} {
	return t.tomb.Dead()
}

// Finished reports whether the task has stopped.
func (t *Task) Finished() bool {
	select {
	case <-t.tomb.Dead():
		return true
	default:
		return false
	}
}
