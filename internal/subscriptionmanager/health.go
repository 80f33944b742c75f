// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscriptionmanager

import (
	"slices"
	"time"

	"github.com/juju/dispatch/core/subscription"
)

// Health describes the state of a manager.
type Health struct {
	ActiveSubscriptions int
	ActiveTasks         int
	CompletedTasks      uint64
	Uptime              time.Duration
	ShutDown            bool

	// Healthy is true when the active gauge agrees with the registry.
	Healthy bool
}

// Health reports the manager's current state. Tasks that have finished
// but not yet been reconciled are counted as completed.
func (m *Manager) Health() Health {
	m.acquire()
	defer m.release()

	h := Health{
		ActiveSubscriptions: len(m.handles),
		CompletedTasks:      m.completedTasks,
		Uptime:              m.cfg.Clock.Now().Sub(m.started),
		ShutDown:            m.shutdown,
	}
	for t := range m.tasks {
		if t.Finished() {
			h.CompletedTasks++
		} else {
			h.ActiveTasks++
		}
	}
	h.Healthy = m.metrics.active.Load() == int64(len(m.handles))
	return h
}

// Report implements the juju worker reporter convention, for
// introspection.
func (m *Manager) Report() map[string]any {
	health := m.Health()
	metrics := m.Metrics()
	return map[string]any{
		"active-subscriptions": health.ActiveSubscriptions,
		"active-tasks":         health.ActiveTasks,
		"completed-tasks":      health.CompletedTasks,
		"uptime":               health.Uptime.String(),
		"healthy":              health.Healthy,
		"created":              metrics.Created,
		"cancelled":            metrics.Cancelled,
		"completed":            metrics.Completed,
	}
}

func sortIDs(ids []subscription.ID) {
	slices.SortFunc(ids, func(a, b subscription.ID) int {
		return a.Compare(b)
	})
}
