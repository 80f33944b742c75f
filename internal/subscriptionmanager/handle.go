// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager

import (
	"time"

	"github.com/juju/dispatch/core/subscription"
)

// Handle is the registry record of one live subscription.
type Handle struct {
	// ID identifies the subscription. A zero ID is replaced with a new
	// one on registration.
	ID subscription.ID

	// Path is the procedure the subscription was opened on.
	Path string

	// Created is set by the manager on registration if zero.
	Created time.Time

	// Signal stops the subscription's producer. A nil signal is replaced
	// with a new one on registration.
	Signal *subscription.Signal

	// Task is the background task spawned for the subscription, if any.
	Task *Task
}

// NewHandle returns a handle sharing the id and signal of the given
// subscription context.
func NewHandle(path string, sc *subscription.Context) *Handle {
	return &Handle{
		ID:     sc.ID(),
		Path:   path,
		Signal: sc.Signal(),
	}
}
