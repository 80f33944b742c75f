// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pubsub provides an in-process broadcast log with one producer
// side and many independent consumer cursors.
//
// A Publisher keeps the last Capacity events in a ring. Every Subscriber
// reads the ring at its own pace; consumers never block each other. When a
// subscriber falls further behind than the ring can hold it is moved
// forward on its next receive and told how many events it missed. The
// publisher's Strategy decides what a publish does when some subscriber
// has no room left: overwrite (DropOldest), wait (Block) or fail (Error).
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/core/logger"
)

// DefaultCapacity is the ring size used by DefaultConfig.
const DefaultCapacity = 1024

// Config holds the configuration of a publisher.
type Config struct {
	// Capacity is the number of events retained for slow subscribers.
	Capacity int

	// Strategy applies when a subscriber has Capacity unread events.
	Strategy Strategy

	// BlockTimeout bounds the wait of the Block strategy. Zero waits for
	// as long as the publish context allows.
	BlockTimeout time.Duration

	// Clock measures BlockTimeout. Defaults to the wall clock.
	Clock clock.Clock

	// Logger defaults to the package logger.
	Logger logger.Logger
}

// DefaultConfig returns a drop-oldest configuration with DefaultCapacity.
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Strategy: DropOldest,
	}
}

// Validate ensures the configuration can be used to build a publisher.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.NotValidf("capacity %d", c.Capacity)
	}
	if err := c.Strategy.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.BlockTimeout < 0 {
		return errors.NotValidf("negative block timeout")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Logger == nil {
		c.Logger = logger.GetLogger("pubsub")
	}
	return c
}

// Status is the outcome of a successful publish.
type Status struct {
	// Delivered is the number of subscribers the event was made
	// available to.
	Delivered int
}

// NoSubscribers reports that nobody was listening. This is not a failure.
func (s Status) NoSubscribers() bool {
	return s.Delivered == 0
}

// Publisher broadcasts events of type T to every live subscriber.
type Publisher[T any] struct {
	cfg     Config
	metrics Metrics

	mu      sync.Mutex
	ring    []event.Event[T]
	tail    uint64
	cursors map[*Subscriber[T]]struct{}
	closed  bool

	// readable is closed when the log grows or the publisher closes.
	// writable is closed when a cursor advances or goes away. Both are
	// created on demand by the first waiter.
	readable chan struct{}
	writable chan struct{}
}

// NewPublisher returns a publisher with the given configuration.
func NewPublisher[T any](cfg Config) (*Publisher[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Publisher[T]{
		cfg:     cfg.withDefaults(),
		ring:    make([]event.Event[T], cfg.Capacity),
		cursors: make(map[*Subscriber[T]]struct{}),
	}, nil
}

// Subscribe returns a new cursor positioned after the most recent event.
func (p *Publisher[T]) Subscribe() (*Subscriber[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	s := &Subscriber[T]{
		pub:  p,
		next: p.tail,
	}
	p.cursors[s] = struct{}{}
	p.metrics.subscribers.Add(1)
	return s, nil
}

// SubscriberCount returns the number of live subscribers.
func (p *Publisher[T]) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cursors)
}

// Capacity returns the ring size.
func (p *Publisher[T]) Capacity() int {
	return p.cfg.Capacity
}

// Strategy returns the configured backpressure strategy.
func (p *Publisher[T]) Strategy() Strategy {
	return p.cfg.Strategy
}

// Metrics returns a snapshot of the publisher's counters.
func (p *Publisher[T]) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// PublishData publishes data as a plain event.
func (p *Publisher[T]) PublishData(ctx context.Context, data T) (Status, error) {
	return p.Publish(ctx, event.New(data))
}

// Publish appends ev to the log. With no subscribers it returns a Status
// for which NoSubscribers is true, and a nil error.
func (p *Publisher[T]) Publish(ctx context.Context, ev event.Event[T]) (Status, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.metrics.failed.Add(1)
		return Status{}, ErrClosed
	}

	if p.cfg.Strategy != DropOldest && p.fullLocked() {
		switch p.cfg.Strategy {
		case Error:
			p.mu.Unlock()
			p.metrics.failed.Add(1)
			return Status{}, errors.QuotaLimitExceededf("subscriber buffer of %d events", p.cfg.Capacity)
		case Block:
			if err := p.waitForRoomLocked(ctx); err != nil {
				p.metrics.failed.Add(1)
				return Status{}, errors.Trace(err)
			}
		}
	}
	defer p.mu.Unlock()

	if p.closed {
		p.metrics.failed.Add(1)
		return Status{}, ErrClosed
	}

	delivered := len(p.cursors)
	if delivered == 0 {
		p.metrics.noSubscribers.Add(1)
		return Status{}, nil
	}
	p.appendLocked(ev)
	return Status{Delivered: delivered}, nil
}

// Close stops the publisher. Subscribers can still drain what is in the
// log, after which they receive ErrClosed.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.wakeReadersLocked()
	p.wakeWritersLocked()
}

// waitForRoomLocked is entered with p.mu held. It returns nil, still
// holding p.mu, once the log has room for every subscriber or when
// BlockTimeout elapses; the caller then appends and slow subscribers lag.
// On error p.mu has been released.
func (p *Publisher[T]) waitForRoomLocked(ctx context.Context) error {
	p.metrics.blocked.Add(1)

	var timeout <-chan time.Time
	if p.cfg.BlockTimeout > 0 {
		timeout = p.cfg.Clock.After(p.cfg.BlockTimeout)
	}
	for p.fullLocked() {
		if p.writable == nil {
			p.writable = make(chan struct{})
		}
		writable := p.writable
		p.mu.Unlock()

		select {
		case <-writable:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			p.mu.Lock()
			p.cfg.Logger.Debugf("block timeout after %v, evicting for slow subscribers", p.cfg.BlockTimeout)
			return nil
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
	}
	return nil
}

// fullLocked reports whether any live subscriber has Capacity unread
// events.
func (p *Publisher[T]) fullLocked() bool {
	capacity := uint64(p.cfg.Capacity)
	for s := range p.cursors {
		if p.tail-s.next >= capacity {
			return true
		}
	}
	return false
}

func (p *Publisher[T]) appendLocked(ev event.Event[T]) {
	capacity := uint64(p.cfg.Capacity)
	if p.tail >= capacity {
		evicted := p.tail - capacity
		for s := range p.cursors {
			if s.next <= evicted {
				p.metrics.dropped.Add(1)
				break
			}
		}
	}
	p.ring[p.tail%capacity] = ev
	p.tail++
	p.metrics.published.Add(1)
	p.wakeReadersLocked()
}

func (p *Publisher[T]) wakeReadersLocked() {
	if p.readable != nil {
		close(p.readable)
		p.readable = nil
	}
}

func (p *Publisher[T]) wakeWritersLocked() {
	if p.writable != nil {
		close(p.writable)
		p.writable = nil
	}
}

// Subscriber is an independent cursor into a publisher's log. A single
// subscriber must be read from one goroutine at a time.
type Subscriber[T any] struct {
	pub *Publisher[T]
	lag atomic.Uint64

	// next and closed are guarded by pub.mu.
	next   uint64
	closed bool
}

// Recv returns the next event. If the subscriber fell behind the log it
// returns a *LaggedError first, once, and then continues from the oldest
// retained event. When the publisher is closed and the subscriber has
// read everything, Recv returns ErrClosed.
func (s *Subscriber[T]) Recv(ctx context.Context) (event.Event[T], error) {
	for {
		ev, wait, err := s.poll()
		if wait == nil {
			return ev, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return event.Event[T]{}, ctx.Err()
		}
	}
}

// TryRecv is Recv without blocking. It returns ErrEmpty if no event is
// ready.
func (s *Subscriber[T]) TryRecv() (event.Event[T], error) {
	ev, wait, err := s.poll()
	if wait != nil {
		return event.Event[T]{}, ErrEmpty
	}
	return ev, err
}

// poll returns either a result, or a channel to wait on before polling
// again.
func (s *Subscriber[T]) poll() (event.Event[T], <-chan struct{}, error) {
	p := s.pub
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.closed {
		return event.Event[T]{}, nil, ErrClosed
	}

	capacity := uint64(p.cfg.Capacity)
	if p.tail-s.next > capacity {
		oldest := p.tail - capacity
		missed := oldest - s.next
		s.next = oldest
		s.lag.Add(missed)
		p.metrics.lagged.Add(missed)
		p.wakeWritersLocked()
		p.cfg.Logger.Warningf("subscriber lagged, skipped %d events", missed)
		return event.Event[T]{}, nil, &LaggedError{Missed: missed}
	}
	if s.next < p.tail {
		ev := p.ring[s.next%capacity]
		s.next++
		p.wakeWritersLocked()
		return ev, nil, nil
	}
	if p.closed {
		return event.Event[T]{}, nil, ErrClosed
	}
	if p.readable == nil {
		p.readable = make(chan struct{})
	}
	return event.Event[T]{}, p.readable, nil
}

// Lag returns the total number of events this subscriber was moved past.
func (s *Subscriber[T]) Lag() uint64 {
	return s.lag.Load()
}

// Pending returns the number of events waiting to be read, not counting
// those already lost to lag.
func (s *Subscriber[T]) Pending() int {
	p := s.pub
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.closed {
		return 0
	}
	pending := p.tail - s.next
	if capacity := uint64(p.cfg.Capacity); pending > capacity {
		pending = capacity
	}
	return int(pending)
}

// Close detaches the subscriber from the publisher. Producers blocked on
// it are released, and concurrent receives return ErrClosed.
func (s *Subscriber[T]) Close() {
	p := s.pub
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(p.cursors, s)
	p.metrics.subscribers.Add(-1)
	p.wakeWritersLocked()
	p.wakeReadersLocked()
}
