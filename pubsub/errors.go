// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrClosed is returned when publishing to, subscribing to or receiving
	// from a closed publisher or subscriber.
	ErrClosed = errors.ConstError("publisher closed")

	// ErrEmpty is returned by TryRecv when no event is waiting.
	ErrEmpty = errors.ConstError("no event available")

	// ErrBufferFull is returned by a publish under the Error strategy when
	// a subscriber has no room left.
	ErrBufferFull = errors.QuotaLimitExceeded
)

// LaggedError is returned by a receive when the subscriber fell more than
// the log capacity behind. The subscriber has been moved forward to the
// oldest retained event; the next receive returns it.
type LaggedError struct {
	Missed uint64
}

// Error implements error.
func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged: missed %d events", e.Missed)
}

// IsLagged reports whether err is a LaggedError, and how many events were
// missed.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if errors.As(err, &lagged) {
		return lagged.Missed, true
	}
	return 0, false
}
