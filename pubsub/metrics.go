// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"sync/atomic"
)

// Metrics counts what a publisher did. All fields are updated atomically.
type Metrics struct {
	published     atomic.Uint64
	noSubscribers atomic.Uint64
	failed        atomic.Uint64
	dropped       atomic.Uint64
	lagged        atomic.Uint64
	blocked       atomic.Uint64
	subscribers   atomic.Int64
}

// MetricsSnapshot is a point in time copy of Metrics.
type MetricsSnapshot struct {
	// Published counts events appended to the log.
	Published uint64
	// NoSubscribers counts publishes that found nobody listening.
	NoSubscribers uint64
	// Failed counts publishes that returned an error.
	Failed uint64
	// Dropped counts events overwritten before every subscriber read them.
	Dropped uint64
	// Lagged is the total number of events subscribers were moved past.
	Lagged uint64
	// Blocked counts publishes that had to wait for room.
	Blocked uint64
	// Subscribers is the number of live subscribers.
	Subscribers int64
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published:     m.published.Load(),
		NoSubscribers: m.noSubscribers.Load(),
		Failed:        m.failed.Load(),
		Dropped:       m.dropped.Load(),
		Lagged:        m.lagged.Load(),
		Blocked:       m.blocked.Load(),
		Subscribers:   m.subscribers.Load(),
	}
}

// Add accumulates other into s. Used to total the channels of a
// ChannelPublisher.
func (s MetricsSnapshot) Add(other MetricsSnapshot) MetricsSnapshot {
	s.Published += other.Published
	s.NoSubscribers += other.NoSubscribers
	s.Failed += other.Failed
	s.Dropped += other.Dropped
	s.Lagged += other.Lagged
	s.Blocked += other.Blocked
	s.Subscribers += other.Subscribers
	return s
}
