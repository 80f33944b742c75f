// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager

import (
	"sync/atomic"
	"time"
)

// Metrics are the manager's subscription counters.
type Metrics struct {
	created   atomic.Uint64
	cancelled atomic.Uint64
	completed atomic.Uint64
	active    atomic.Int64
	duration  atomic.Int64
}

func (m *Metrics) recordCreated() {
	m.created.Add(1)
	m.active.Add(1)
}

func (m *Metrics) recordCancelled(d time.Duration) {
	m.cancelled.Add(1)
	m.recordRemoved(d)
}

func (m *Metrics) recordCompleted(d time.Duration) {
	m.completed.Add(1)
	m.recordRemoved(d)
}

func (m *Metrics) recordRemoved(d time.Duration) {
	m.active.Add(-1)
	m.duration.Add(int64(d))
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Created:       m.created.Load(),
		Cancelled:     m.cancelled.Load(),
		Completed:     m.completed.Load(),
		Active:        m.active.Load(),
		TotalDuration: time.Duration(m.duration.Load()),
	}
}

// MetricsSnapshot is a point in time copy of Metrics.
type MetricsSnapshot struct {
	Created   uint64
	Cancelled uint64
	Completed uint64
	Active    int64

	// TotalDuration is the summed lifetime of every removed subscription.
	TotalDuration time.Duration
}

// AverageDuration is the mean lifetime of removed subscriptions.
func (s MetricsSnapshot) AverageDuration() time.Duration {
	removed := s.Cancelled + s.Completed
	if removed == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(removed)
}
