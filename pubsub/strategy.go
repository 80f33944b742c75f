// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"github.com/juju/errors"
)

// Strategy decides what a publish does when the log is full for at least
// one live subscriber, that is, when that subscriber has Capacity unread
// events.
type Strategy int

const (
	// DropOldest overwrites the oldest entry. Subscribers that had not read
	// it are told how many events they missed on their next receive.
	DropOldest Strategy = iota

	// Block makes the publisher wait for room. If the publisher's
	// BlockTimeout elapses first the event is admitted as with DropOldest;
	// if the publish context is done first the send fails.
	Block

	// Error fails the send with ErrBufferFull without touching the log.
	Error
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	switch s {
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	case Error:
		return "error"
	}
	return "unknown"
}

// Validate returns an error if the strategy is not one of the known values.
func (s Strategy) Validate() error {
	switch s {
	case DropOldest, Block, Error:
		return nil
	}
	return errors.NotValidf("backpressure strategy %d", int(s))
}

// ParseStrategy parses the textual form of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	case "error":
		return Error, nil
	}
	return 0, errors.NotValidf("backpressure strategy %q", s)
}
