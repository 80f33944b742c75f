// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/dispatch/core/event"
)

// Stream pumps the subscriber into a channel until ctx is done or the
// publisher closes, then closes the channel and the subscriber. Lag is
// logged and skipped over; it remains visible through Lag.
//
// This is the usual body of a subscription handler, whose ctx is already
// bound to the subscription's signal and timeout:
//
//	sub, err := pub.Subscribe()
//	if err != nil {
//		return nil, errors.Trace(err)
//	}
//	return sub.Stream(ctx), nil
func (s *Subscriber[T]) Stream(ctx context.Context) <-chan event.Event[T] {
	out := make(chan event.Event[T])
	go func() {
		defer close(out)
		defer s.Close()

		for {
			ev, err := s.Recv(ctx)
			if missed, ok := IsLagged(err); ok {
				s.pub.cfg.Logger.Debugf("stream skipped %d events", missed)
				continue
			}
			if err != nil {
				if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
					s.pub.cfg.Logger.Errorf("stream receive: %v", err)
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
