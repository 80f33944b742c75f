// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package apiserver is the host side of the dispatch engine. It serves
// calls and batches from a compiled router, and owns the subscriptions it
// opens for as long as their callers keep them.
package apiserver

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/dispatch/core/event"
	"github.com/juju/dispatch/core/logger"
	"github.com/juju/dispatch/core/subscription"
	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/internal/worker/subscriptioncleanup"
	"github.com/juju/dispatch/rpc"
	"github.com/juju/dispatch/rpc/batch"
)

const (
	// DefaultBufferSize is the number of events buffered for a subscriber
	// that is not reading.
	DefaultBufferSize = 16

	// DefaultShutdownTimeout bounds how long a dying server waits for its
	// subscription tasks.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the dependencies of a Server.
type Config struct {
	// Router serves every call and subscription.
	Router *rpc.CompiledRouter

	// Manager tracks the subscriptions opened through the server.
	Manager *subscriptionmanager.Manager

	// Executor runs batches. Without one, Batch is not supported.
	Executor *batch.Executor

	// BufferSize is the per subscription event buffer.
	BufferSize int

	// ShutdownTimeout bounds the wait for subscription tasks when the
	// server is killed.
	ShutdownTimeout time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.Router == nil {
		return errors.NotValidf("nil Router")
	}
	if c.Manager == nil {
		return errors.NotValidf("nil Manager")
	}
	if c.BufferSize < 0 {
		return errors.NotValidf("negative BufferSize")
	}
	if c.ShutdownTimeout < 0 {
		return errors.NotValidf("negative ShutdownTimeout")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// SubscribeOptions configure a subscription opened with Server.Subscribe.
type SubscribeOptions struct {
	// LastEventID is the resumption token handed to the handler.
	LastEventID string

	// Timeout ends the subscription after the given time. Zero means no
	// timeout.
	Timeout time.Duration
}

// Server is a worker serving a compiled router. Killing it cancels every
// subscription it opened.
type Server struct {
	catacomb catacomb.Catacomb
	cfg      Config
}

var _ worker.Worker = (*Server)(nil)

// NewServer starts a server, along with the worker that reconciles the
// manager's finished tasks.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	cleanup, err := subscriptioncleanup.NewWorker(subscriptioncleanup.Config{
		Reconciler: cfg.Manager,
		Interval:   cfg.Manager.Config().CleanupInterval,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	s := &Server{cfg: cfg}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &s.catacomb,
		Work: s.loop,
		Init: []worker.Worker{cleanup},
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

func (s *Server) loop() error {
	<-s.catacomb.Dying()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := s.cfg.Clock.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	go func() {
		select {
		case <-timer.Chan():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.cfg.Manager.Shutdown(ctx); err != nil {
		s.cfg.Logger.Warningf("subscriptions did not stop: %v", err)
	}
	return s.catacomb.ErrDying()
}

// Kill is part of the worker.Worker interface.
func (s *Server) Kill() {
	s.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *Server) Wait() error {
	return s.catacomb.Wait()
}

// Call invokes the query or mutation at path.
func (s *Server) Call(ctx context.Context, path string, input any) (any, error) {
	if err := s.alive(); err != nil {
		return nil, errors.Trace(err)
	}
	out, err := s.cfg.Router.Call(ctx, path, input)
	return out, errors.Trace(err)
}

// Batch runs items concurrently with the server's executor.
func (s *Server) Batch(ctx context.Context, items []batch.Item) (batch.Response, error) {
	if s.cfg.Executor == nil {
		return batch.Response{}, errors.NotSupportedf("batch")
	}
	if err := s.alive(); err != nil {
		return batch.Response{}, errors.Trace(err)
	}
	resp, err := s.cfg.Executor.Execute(ctx, items)
	return resp, errors.Trace(err)
}

// Subscribe opens the subscription at path and registers it with the
// manager. Events are delivered on the returned channel, which is closed
// when the stream ends, the subscription is cancelled, or the server
// stops.
//
// ctx bounds registration only; the subscription runs until it ends or is
// cancelled with Unsubscribe. Values on ctx remain visible to the handler.
func (s *Server) Subscribe(ctx context.Context, path string, input any, opts SubscribeOptions) (subscription.ID, <-chan event.Event[any], error) {
	if err := s.alive(); err != nil {
		return subscription.ID{}, nil, errors.Trace(err)
	}

	sc := subscription.NewContext().
		WithLastEventID(opts.LastEventID).
		WithTimeout(opts.Timeout).
		WithClock(s.cfg.Clock)

	stream, err := s.cfg.Router.Subscribe(context.WithoutCancel(ctx), path, input, sc)
	if err != nil {
		return subscription.ID{}, nil, errors.Trace(err)
	}

	id, err := s.cfg.Manager.SubscribeWithTimeout(ctx, subscriptionmanager.NewHandle(path, sc))
	if err != nil {
		sc.Cancel()
		return subscription.ID{}, nil, errors.Annotatef(err, "registering subscription to %q", path)
	}

	out := make(chan event.Event[any], s.cfg.BufferSize)
	_, err = s.cfg.Manager.Spawn(id, s.forward(sc, stream, out))
	if err != nil {
		s.cfg.Manager.Unsubscribe(id)
		return subscription.ID{}, nil, errors.Annotatef(err, "starting subscription to %q", path)
	}
	return id, out, nil
}

// forward copies stream to out until either ends. A stream that ends
// without being cancelled is completed.
func (s *Server) forward(sc *subscription.Context, stream rpc.Stream, out chan<- event.Event[any]) subscriptionmanager.TaskFunc {
	return func(ctx context.Context) error {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-stream:
				if !ok {
					if !sc.IsCancelled() {
						s.cfg.Manager.Complete(sc.ID())
					}
					return nil
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Unsubscribe cancels the subscription. It returns false if the id is
// unknown, which includes subscriptions that already ended.
func (s *Server) Unsubscribe(id subscription.ID) bool {
	return s.cfg.Manager.Unsubscribe(id)
}

// Procedures returns the sorted paths served.
func (s *Server) Procedures() []string {
	return s.cfg.Router.Procedures()
}

// Subscriptions returns the ids of the open subscriptions, oldest first.
func (s *Server) Subscriptions() []subscription.ID {
	return s.cfg.Manager.IDs()
}

// Health reports on the subscriptions served.
func (s *Server) Health() subscriptionmanager.Health {
	return s.cfg.Manager.Health()
}

// Report is used by introspection to report on the server.
func (s *Server) Report() map[string]any {
	report := s.cfg.Manager.Report()
	report["procedures"] = len(s.cfg.Router.Procedures())
	return report
}

func (s *Server) alive() error {
	select {
	case <-s.catacomb.Dying():
		return ErrServerStopped
	default:
		return nil
	}
}
