// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pubsub

import (
	"context"

	"github.com/juju/dispatch/core/event"
)

// BatchResult totals a PublishBatch call. A send counts as failed when it
// returned an error or found no subscribers.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
}

// SuccessRate is Succeeded/Total, or 0 for an empty batch.
func (r BatchResult) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total)
}

// IsCompleteSuccess reports a non-empty batch in which every send
// succeeded.
func (r BatchResult) IsCompleteSuccess() bool {
	return r.Total > 0 && r.Failed == 0
}

// IsCompleteFailure reports a non-empty batch in which every send failed.
func (r BatchResult) IsCompleteFailure() bool {
	return r.Total > 0 && r.Succeeded == 0
}

// IsPartialSuccess reports a batch with both successes and failures.
func (r BatchResult) IsPartialSuccess() bool {
	return r.Succeeded > 0 && r.Failed > 0
}

// PublishBatch publishes each event independently, in order. A failed
// send does not stop the rest of the batch.
func (p *Publisher[T]) PublishBatch(ctx context.Context, events []event.Event[T]) BatchResult {
	result := BatchResult{Total: len(events)}
	for i, ev := range events {
		status, err := p.Publish(ctx, ev)
		switch {
		case err != nil:
			p.cfg.Logger.Debugf("batch event %d of %d not published: %v", i+1, len(events), err)
			result.Failed++
		case status.NoSubscribers():
			result.Failed++
		default:
			result.Succeeded++
		}
	}
	return result
}
