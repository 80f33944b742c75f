// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package subscriptionmanager holds the registry of live subscriptions.
//
// A Manager is owned explicitly by whoever serves subscriptions; there is
// no package level registry. Every mutation of the registry goes through a
// single lock, which keeps the active gauge equal to the number of
// registered handles. The lock can be acquired with a deadline, so that
// registration on a saturated manager fails with a timeout instead of
// hanging.
package subscriptionmanager

import (
	"context"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/semaphore"

	"github.com/juju/dispatch/core/subscription"
)

// ErrManagerShutdown is returned by registrations after Shutdown.
const ErrManagerShutdown = errors.ConstError("subscription manager shut down")

// Manager tracks live subscriptions and their background tasks.
type Manager struct {
	cfg     Config
	started time.Time
	metrics Metrics

	// lock guards everything below. It is a semaphore rather than a mutex
	// so that acquiring it can be abandoned.
	lock           *semaphore.Weighted
	handles        map[subscription.ID]*Handle
	tasks          map[*Task]struct{}
	completedTasks uint64
	shutdown       bool
}

// NewManager returns an empty manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Manager{
		cfg:     cfg,
		started: cfg.Clock.Now(),
		lock:    semaphore.NewWeighted(1),
		handles: make(map[subscription.ID]*Handle),
		tasks:   make(map[*Task]struct{}),
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Subscribe registers h and returns its id.
func (m *Manager) Subscribe(h *Handle) (subscription.ID, error) {
	m.acquire()
	defer m.release()
	return m.subscribeLocked(h)
}

// SubscribeWithTimeout is Subscribe bounded by SubscribeTimeout. If the
// registry cannot be locked in time it returns an errors.Timeout error and
// h is not registered.
func (m *Manager) SubscribeWithTimeout(ctx context.Context, h *Handle) (subscription.ID, error) {
	if err := m.acquireWithin(ctx, m.cfg.SubscribeTimeout, "subscribe"); err != nil {
		return subscription.ID{}, errors.Trace(err)
	}
	defer m.release()
	return m.subscribeLocked(h)
}

func (m *Manager) subscribeLocked(h *Handle) (subscription.ID, error) {
	if m.shutdown {
		return subscription.ID{}, ErrManagerShutdown
	}
	if h.ID.IsZero() {
		h.ID = subscription.NewID()
	}
	if _, ok := m.handles[h.ID]; ok {
		return subscription.ID{}, errors.AlreadyExistsf("subscription %s", h.ID)
	}
	if h.Signal == nil {
		h.Signal = subscription.NewSignal()
	}
	if h.Created.IsZero() {
		h.Created = m.cfg.Clock.Now()
	}
	m.handles[h.ID] = h
	m.metrics.recordCreated()
	m.cfg.Logger.Debugf("subscription %s registered on %q", h.ID, h.Path)
	return h.ID, nil
}

// Unsubscribe cancels and removes the subscription. It returns false if
// the id is not registered, which is expected when an explicit cancel
// races with completion.
func (m *Manager) Unsubscribe(id subscription.ID) bool {
	m.acquire()
	defer m.release()
	return m.removeLocked(id, false)
}

// UnsubscribeWithTimeout is Unsubscribe bounded by UnsubscribeTimeout.
// An unknown id is an errors.NotFound error.
func (m *Manager) UnsubscribeWithTimeout(ctx context.Context, id subscription.ID) error {
	if err := m.acquireWithin(ctx, m.cfg.UnsubscribeTimeout, "unsubscribe"); err != nil {
		return errors.Trace(err)
	}
	defer m.release()
	if !m.removeLocked(id, false) {
		return errors.NotFoundf("subscription %s", id)
	}
	return nil
}

// Complete removes a subscription that ended normally. It is counted as
// completed rather than cancelled.
func (m *Manager) Complete(id subscription.ID) bool {
	m.acquire()
	defer m.release()
	return m.removeLocked(id, true)
}

func (m *Manager) removeLocked(id subscription.ID, completed bool) bool {
	h, ok := m.handles[id]
	if !ok {
		return false
	}
	delete(m.handles, id)
	h.Signal.Cancel()

	lifetime := m.cfg.Clock.Now().Sub(h.Created)
	if completed {
		m.metrics.recordCompleted(lifetime)
		m.cfg.Logger.Debugf("subscription %s completed after %v", id, lifetime)
	} else {
		m.metrics.recordCancelled(lifetime)
		m.cfg.Logger.Debugf("subscription %s cancelled after %v", id, lifetime)
	}
	return true
}

// CancelAll cancels and removes every subscription, and returns how many
// there were.
func (m *Manager) CancelAll() int {
	m.acquire()
	defer m.release()
	return m.cancelAllLocked()
}

func (m *Manager) cancelAllLocked() int {
	n := len(m.handles)
	for id := range m.handles {
		m.removeLocked(id, false)
	}
	if n > 0 {
		m.cfg.Logger.Infof("cancelled %d subscriptions", n)
	}
	return n
}

// Spawn starts fn as the background task of the subscription. The task's
// context is cancelled when the subscription is removed.
func (m *Manager) Spawn(id subscription.ID, fn TaskFunc) (*Task, error) {
	m.acquire()
	defer m.release()

	if m.shutdown {
		return nil, ErrManagerShutdown
	}
	h, ok := m.handles[id]
	if !ok {
		return nil, errors.NotFoundf("subscription %s", id)
	}
	t := startTask(id, h.Signal, fn, m.cfg.Logger)
	h.Task = t
	m.tasks[t] = struct{}{}
	return t, nil
}

// Reconcile drops finished tasks from the tracking set and returns how
// many were dropped. It never cancels anything.
func (m *Manager) Reconcile() int {
	m.acquire()
	defer m.release()
	return m.reconcileLocked()
}

func (m *Manager) reconcileLocked() int {
	var n int
	for t := range m.tasks {
		if !t.Finished() {
			continue
		}
		delete(m.tasks, t)
		n++
	}
	m.completedTasks += uint64(n)
	return n
}

// Shutdown cancels every subscription, kills every task and waits for them
// to stop, or for ctx to be done. Afterwards the manager refuses new
// registrations. Calling it again only waits for tasks still running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.acquire()
	m.shutdown = true
	m.cancelAllLocked()
	tasks := make([]*Task, 0, len(m.tasks))
	for t := range m.tasks {
		t.Kill()
		tasks = append(tasks, t)
	}
	m.release()

	for _, t := range tasks {
		select {
		case <-t.Dead():
		case <-ctx.Done():
			return errors.Annotatef(ctx.Err(), "waiting for subscription %s task", t.ID())
		}
	}

	m.acquire()
	defer m.release()
	m.reconcileLocked()
	m.cfg.Logger.Infof("subscription manager shut down")
	return nil
}

// Count returns the number of registered subscriptions.
func (m *Manager) Count() int {
	m.acquire()
	defer m.release()
	return len(m.handles)
}

// Get returns a copy of the handle registered under id.
func (m *Manager) Get(id subscription.ID) (Handle, bool) {
	m.acquire()
	defer m.release()
	h, ok := m.handles[id]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}

// IDs returns the ids of every registered subscription, oldest first.
func (m *Manager) IDs() []subscription.ID {
	m.acquire()
	defer m.release()
	ids := make([]subscription.ID, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Metrics returns a snapshot of the subscription counters.
func (m *Manager) Metrics() MetricsSnapshot {
	return m.metrics.Snapshot()
}

func (m *Manager) acquire() {
	// Acquire only fails when its context is done.
	_ = m.lock.Acquire(context.Background(), 1)
}

func (m *Manager) release() {
	m.lock.Release(1)
}

// acquireWithin takes the lock, giving up after timeout as measured by the
// manager's clock.
func (m *Manager) acquireWithin(ctx context.Context, timeout time.Duration, op string) error {
	if m.lock.TryAcquire(1) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	acquired := make(chan error, 1)
	go func() {
		acquired <- m.lock.Acquire(ctx, 1)
	}()

	timer := m.cfg.Clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-acquired:
		return errors.Trace(err)
	case <-timer.Chan():
		cancel()
		if err := <-acquired; err == nil {
			m.release()
		}
		return errors.Timeoutf("%s after %v", op, timeout)
	}
}
