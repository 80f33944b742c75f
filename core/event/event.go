// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package event defines the value streamed from a subscription back to its
// caller.
package event

import (
	"time"
)

// Event is a single item of a subscription stream. It is immutable: the
// With* methods return modified copies.
type Event[T any] struct {
	data  T
	id    string
	retry time.Duration
	err   error
}

// New returns an event carrying data.
func New[T any](data T) Event[T] {
	return Event[T]{data: data}
}

// Failed returns an error event. Retry is an advisory delay for the caller
// before it resubscribes; nothing in this module acts on it.
func Failed[T any](err error, retry time.Duration) Event[T] {
	return Event[T]{err: err, retry: retry}
}

// WithData returns an event carrying data and the metadata of e. It is used
// to change the payload type while keeping the resumption id and retry
// hint.
func WithData[T, U any](e Event[T], data U) Event[U] {
	return Event[U]{
		data:  data,
		id:    e.id,
		retry: e.retry,
		err:   e.err,
	}
}

// WithID returns a copy of the event carrying a resumption id.
func (e Event[T]) WithID(id string) Event[T] {
	e.id = id
	return e
}

// WithRetry returns a copy of the event carrying a suggested retry interval.
func (e Event[T]) WithRetry(d time.Duration) Event[T] {
	e.retry = d
	return e
}

// Data returns the payload.
func (e Event[T]) Data() T {
	return e.data
}

// ID returns the resumption id, if one was set.
func (e Event[T]) ID() (string, bool) {
	return e.id, e.id != ""
}

// Retry returns the suggested retry interval, if one was set.
func (e Event[T]) Retry() (time.Duration, bool) {
	return e.retry, e.retry > 0
}

// Err returns the error carried by an error event.
func (e Event[T]) Err() error {
	return e.err
}
