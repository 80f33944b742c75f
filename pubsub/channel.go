// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/juju/dispatch/core/event"
)

// ChannelPublisher is a set of independent publishers keyed by channel
// name. A channel is created, with the shared configuration, the first
// time it is subscribed or published to.
type ChannelPublisher[T any] struct {
	cfg Config

	mu       sync.RWMutex
	channels map[string]*Publisher[T]
	closed   bool
}

// NewChannelPublisher returns an empty channel publisher. Every channel it
// creates uses cfg.
func NewChannelPublisher[T any](cfg Config) (*ChannelPublisher[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &ChannelPublisher[T]{
		cfg:      cfg,
		channels: make(map[string]*Publisher[T]),
	}, nil
}

// Channel returns the publisher for name, creating it if needed.
func (c *ChannelPublisher[T]) Channel(name string) (*Publisher[T], error) {
	if name == "" {
		return nil, errors.NotValidf("empty channel name")
	}

	c.mu.RLock()
	pub, ok := c.channels[name]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return pub, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if pub, ok := c.channels[name]; ok {
		return pub, nil
	}
	pub, err := NewPublisher[T](c.cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.channels[name] = pub
	return pub, nil
}

// Subscribe subscribes to the named channel.
func (c *ChannelPublisher[T]) Subscribe(name string) (*Subscriber[T], error) {
	pub, err := c.Channel(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return pub.Subscribe()
}

// Publish publishes ev on the named channel.
func (c *ChannelPublisher[T]) Publish(ctx context.Context, name string, ev event.Event[T]) (Status, error) {
	pub, err := c.Channel(name)
	if err != nil {
		return Status{}, errors.Trace(err)
	}
	return pub.Publish(ctx, ev)
}

// PublishData publishes data on the named channel.
func (c *ChannelPublisher[T]) PublishData(ctx context.Context, name string, data T) (Status, error) {
	return c.Publish(ctx, name, event.New(data))
}

// PublishBatch publishes events on the named channel. If the channel
// cannot be obtained every event counts as failed.
func (c *ChannelPublisher[T]) PublishBatch(ctx context.Context, name string, events []event.Event[T]) BatchResult {
	pub, err := c.Channel(name)
	if err != nil {
		return BatchResult{Total: len(events), Failed: len(events)}
	}
	return pub.PublishBatch(ctx, events)
}

// SubscriberCount returns the number of live subscribers on the named
// channel. Unknown channels have none, and are not created.
func (c *ChannelPublisher[T]) SubscriberCount(name string) int {
	c.mu.RLock()
	pub, ok := c.channels[name]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return pub.SubscriberCount()
}

// Channels returns the sorted names of the channels created so far.
func (c *ChannelPublisher[T]) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove closes and forgets the named channel.
func (c *ChannelPublisher[T]) Remove(name string) bool {
	c.mu.Lock()
	pub, ok := c.channels[name]
	delete(c.channels, name)
	c.mu.Unlock()

	if ok {
		pub.Close()
	}
	return ok
}

// Metrics totals the metrics of every channel.
func (c *ChannelPublisher[T]) Metrics() MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total MetricsSnapshot
	for _, pub := range c.channels {
		total = total.Add(pub.Metrics())
	}
	return total
}

// Close closes every channel. Further use returns ErrClosed.
func (c *ChannelPublisher[T]) Close() {
	c.mu.Lock()
	channels := c.channels
	c.channels = make(map[string]*Publisher[T])
	c.closed = true
	c.mu.Unlock()

	for _, pub := range channels {
		pub.Close()
	}
}
