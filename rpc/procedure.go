// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"time"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/core/subscription"
)

// Stream is the type-erased event stream returned by a subscription.
type Stream = <-chan event.Event[any]

// Procedure is a registered unit of behaviour. The constructors Query,
// Mutation and Subscription fix its input and output types; from then on
// the router only deals in structured values.
type Procedure interface {
	// Type returns the kind of procedure.
	Type() ProcedureType

	invoke(ctx context.Context, input any) (any, error)
}

// Validator is implemented by input types that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// HandlerFunc is the signature of query and mutation handlers.
type HandlerFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

// SubscriptionFunc is the signature of subscription handlers. The returned
// channel is drained until it is closed or the subscription is cancelled;
// ctx is done in the latter case, and the handler should stop producing.
type SubscriptionFunc[In, Out any] func(ctx context.Context, in In, sc *subscription.Context) (<-chan event.Event[Out], error)

// Query returns a read-only procedure.
func Query[In, Out any](fn HandlerFunc[In, Out]) Procedure {
	return handler[In, Out]{typ: TypeQuery, fn: fn}
}

// Mutation returns a procedure with side effects.
func Mutation[In, Out any](fn HandlerFunc[In, Out]) Procedure {
	return handler[In, Out]{typ: TypeMutation, fn: fn}
}

// Subscription returns a streaming procedure.
func Subscription[In, Out any](fn SubscriptionFunc[In, Out]) Procedure {
	return subscriptionHandler[In, Out]{fn: fn}
}

type handler[In, Out any] struct {
	typ ProcedureType
	fn  HandlerFunc[In, Out]
}

func (h handler[In, Out]) Type() ProcedureType {
	return h.typ
}

func (h handler[In, Out]) invoke(ctx context.Context, input any) (any, error) {
	in, err := decode[In](input)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out, err := h.fn(ctx, in)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return encode(out)
}

type subscriptionHandler[In, Out any] struct {
	fn SubscriptionFunc[In, Out]
}

func (subscriptionHandler[In, Out]) Type() ProcedureType {
	return TypeSubscription
}

func (h subscriptionHandler[In, Out]) invoke(ctx context.Context, input any) (any, error) {
	sc, ok := subscription.FromContext(ctx)
	if !ok {
		return nil, errors.NotValidf("subscription without subscription context")
	}
	in, err := decode[In](input)
	if err != nil {
		return nil, errors.Trace(err)
	}
	events, err := h.fn(ctx, in, sc)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return eraseStream(ctx, events), nil
}

// eraseStream re-encodes every event of in as a structured value. It stops
// when in is closed or ctx is done.
func eraseStream[T any](ctx context.Context, in <-chan event.Event[T]) Stream {
	out := make(chan event.Event[any])
	go func() {
		defer close(out)
		for {
			var ev event.Event[T]
			var ok bool
			select {
			case ev, ok = <-in:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}

			erased := event.WithData[T, any](ev, nil)
			if ev.Err() == nil {
				data, err := encode(ev.Data())
				if err != nil {
					retry, _ := ev.Retry()
					erased = event.Failed[any](err, retry)
				} else {
					erased = event.WithData(ev, data)
				}
			}
			select {
			case out <- erased:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func decode[T any](input any) (T, error) {
	var in T
	if typed, ok := input.(T); ok {
		in = typed
	} else if input != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:     "json",
			ErrorUnused: true,
			Result:      &in,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToTimeHookFunc(time.RFC3339),
				exactIntegerHook,
			),
		})
		if err != nil {
			return in, errors.Trace(err)
		}
		if err := decoder.Decode(input); err != nil {
			return in, errors.NewNotValid(err, "decoding input")
		}
	}

	var validator Validator
	switch v := any(&in).(type) {
	case Validator:
		validator = v
	default:
		validator, _ = any(in).(Validator)
	}
	if validator != nil {
		if err := validator.Validate(); err != nil {
			return in, errors.NewNotValid(err, "validating input")
		}
	}
	return in, nil
}

// exactIntegerHook refuses numbers that an integer field cannot hold
// exactly: fractions, and values outside the field's range.
func exactIntegerHook(from, to reflect.Type, data any) (any, error) {
	var signed bool
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		signed = true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
	default:
		return data, nil
	}

	v := reflect.ValueOf(data)
	target := reflect.New(to).Elem()
	var overflows bool
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != math.Trunc(f) {
			return nil, errors.Errorf("%v is not an integer", f)
		}
		if signed {
			overflows = f < math.MinInt64 || f >= math.MaxInt64 || target.OverflowInt(int64(f))
		} else {
			overflows = f < 0 || f >= math.MaxUint64 || target.OverflowUint(uint64(f))
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := v.Int()
		if signed {
			overflows = target.OverflowInt(i)
		} else {
			overflows = i < 0 || target.OverflowUint(uint64(i))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if signed {
			overflows = u > math.MaxInt64 || target.OverflowInt(int64(u))
		} else {
			overflows = target.OverflowUint(u)
		}
	default:
		return data, nil
	}
	if overflows {
		return nil, errors.Errorf("%v overflows %s", data, to)
	}
	return data, nil
}

// encode turns a handler result into a tree of maps, slices and scalars,
// as the caller would see it after a JSON round trip.
func encode(out any) (any, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Annotate(err, "encoding output")
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, errors.Annotate(err, "encoding output")
	}
	return value, nil
}
