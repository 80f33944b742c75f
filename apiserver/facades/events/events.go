// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package events exposes a named-channel event hub as procedures:
//
//	publish       mutation      PublishArgs -> PublishResult
//	publishBatch  mutation      PublishBatchArgs -> BatchResult
//	channels      query         -> []ChannelInfo
//	watch         subscription  WatchArgs -> events on the channel
package events

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/core/subscription"
	"github.com/juju/dispatch/pubsub"
	"github.com/juju/dispatch/rpc"
)

// Hub is the part of a channel publisher used by the facade.
type Hub interface {
	Subscribe(name string) (*pubsub.Subscriber[any], error)
	Publish(ctx context.Context, name string, ev event.Event[any]) (pubsub.Status, error)
	PublishBatch(ctx context.Context, name string, events []event.Event[any]) pubsub.BatchResult
	SubscriberCount(name string) int
	Channels() []string
}

var _ Hub = (*pubsub.ChannelPublisher[any])(nil)

// Message is an event as supplied by a publisher.
type Message struct {
	ID   string `json:"id,omitempty"`
	Data any    `json:"data"`
}

func (m Message) event() event.Event[any] {
	ev := event.New(m.Data)
	if m.ID != "" {
		ev = ev.WithID(m.ID)
	}
	return ev
}

// PublishArgs holds the arguments of publish.
type PublishArgs struct {
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data"`
}

// Validate implements rpc.Validator.
func (a PublishArgs) Validate() error {
	if a.Channel == "" {
		return errors.NotValidf("empty channel")
	}
	return nil
}

// PublishResult is the result of publish.
type PublishResult struct {
	// Delivered is zero when nobody was listening, which is not an error.
	Delivered int `json:"delivered"`
}

// PublishBatchArgs holds the arguments of publishBatch.
type PublishBatchArgs struct {
	Channel  string    `json:"channel"`
	Messages []Message `json:"messages"`
}

// Validate implements rpc.Validator.
func (a PublishBatchArgs) Validate() error {
	if a.Channel == "" {
		return errors.NotValidf("empty channel")
	}
	return nil
}

// BatchResult is the result of publishBatch.
type BatchResult struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success-rate"`
}

// ChannelInfo describes one channel.
type ChannelInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// WatchArgs holds the arguments of watch.
type WatchArgs struct {
	Channel string `json:"channel"`
}

// Validate implements rpc.Validator.
func (a WatchArgs) Validate() error {
	if a.Channel == "" {
		return errors.NotValidf("empty channel")
	}
	return nil
}

// Facade serves the procedures of a hub.
type Facade struct {
	hub Hub
}

// NewFacade returns a facade over hub.
func NewFacade(hub Hub) *Facade {
	return &Facade{hub: hub}
}

// Router returns a router with the facade's procedures, ready to be
// merged under a prefix.
func (f *Facade) Router(opts ...rpc.Option) (*rpc.Router, error) {
	r := rpc.NewRouter(opts...)
	for path, p := range map[string]rpc.Procedure{
		"publish":      rpc.Mutation(f.Publish),
		"publishBatch": rpc.Mutation(f.PublishBatch),
		"channels":     rpc.Query(f.Channels),
		"watch":        rpc.Subscription(f.Watch),
	} {
		if err := r.Register(path, p); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return r, nil
}

// Publish publishes one message.
func (f *Facade) Publish(ctx context.Context, args PublishArgs) (PublishResult, error) {
	msg := Message{ID: args.ID, Data: args.Data}
	status, err := f.hub.Publish(ctx, args.Channel, msg.event())
	if err != nil {
		return PublishResult{}, errors.Annotatef(err, "publishing to %q", args.Channel)
	}
	return PublishResult{Delivered: status.Delivered}, nil
}

// PublishBatch publishes every message independently.
func (f *Facade) PublishBatch(ctx context.Context, args PublishBatchArgs) (BatchResult, error) {
	events := make([]event.Event[any], len(args.Messages))
	for i, m := range args.Messages {
		events[i] = m.event()
	}
	result := f.hub.PublishBatch(ctx, args.Channel, events)
	return BatchResult{
		Total:       result.Total,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		SuccessRate: result.SuccessRate(),
	}, nil
}

// Channels lists the channels created so far.
func (f *Facade) Channels(context.Context, any) ([]ChannelInfo, error) {
	names := f.hub.Channels()
	infos := make([]ChannelInfo, len(names))
	for i, name := range names {
		infos[i] = ChannelInfo{Name: name, Subscribers: f.hub.SubscriberCount(name)}
	}
	return infos, nil
}

// Watch streams the channel's events from now on. Events published
// before the call, including any after the caller's last event id, are
// not replayed.
func (f *Facade) Watch(ctx context.Context, args WatchArgs, _ *subscription.Context) (<-chan event.Event[any], error) {
	sub, err := f.hub.Subscribe(args.Channel)
	if err != nil {
		return nil, errors.Annotatef(err, "watching %q", args.Channel)
	}
	return sub.Stream(ctx), nil
}
