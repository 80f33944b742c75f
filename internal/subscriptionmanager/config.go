// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/dispatch/core/logger"
)

const (
	// DefaultSubscribeTimeout bounds SubscribeWithTimeout.
	DefaultSubscribeTimeout = 5 * time.Second

	// DefaultUnsubscribeTimeout bounds UnsubscribeWithTimeout.
	DefaultUnsubscribeTimeout = 5 * time.Second

	// DefaultCleanupInterval is how often finished tasks are reconciled.
	DefaultCleanupInterval = 30 * time.Second
)

// Config holds the dependencies and settings of a Manager.
type Config struct {
	SubscribeTimeout   time.Duration
	UnsubscribeTimeout time.Duration
	CleanupInterval    time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

// DefaultConfig returns a configuration using the wall clock and the
// package logger.
func DefaultConfig() Config {
	return Config{
		SubscribeTimeout:   DefaultSubscribeTimeout,
		UnsubscribeTimeout: DefaultUnsubscribeTimeout,
		CleanupInterval:    DefaultCleanupInterval,
		Clock:              clock.WallClock,
		Logger:             logger.GetLogger("subscriptionmanager"),
	}
}

// Validate returns an error if the config cannot be used to start a
// Manager.
func (c Config) Validate() error {
	if c.SubscribeTimeout <= 0 {
		return errors.NotValidf("non-positive SubscribeTimeout")
	}
	if c.UnsubscribeTimeout <= 0 {
		return errors.NotValidf("non-positive UnsubscribeTimeout")
	}
	if c.CleanupInterval <= 0 {
		return errors.NotValidf("non-positive CleanupInterval")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}
