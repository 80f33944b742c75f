// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/juju/dispatch/apiserver"
	"github.com/juju/dispatch/apiserver/facades/events"
	"github.com/juju/dispatch/internal/config"
	"github.com/juju/dispatch/internal/metrics"
	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/pubsub"
	"github.com/juju/dispatch/rpc"
	"github.com/juju/dispatch/rpc/batch"
	"github.com/juju/dispatch/rpc/middleware"
)

// stack is a running server and what it was built from.
type stack struct {
	server *apiserver.Server
	hub    *pubsub.ChannelPublisher[any]
}

// newStack builds the server described by cfg, and registers its
// collectors with registerer.
func newStack(cfg config.Config, clock clock.Clock, registerer prometheus.Registerer) (*stack, error) {
	managerCfg := cfg.SubscriptionManager()
	managerCfg.Clock = clock
	manager, err := subscriptionmanager.NewManager(managerCfg)
	if err != nil {
		return nil, errors.Trace(err)
	}

	publisherCfg, err := cfg.PublisherConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	publisherCfg.Clock = clock
	hub, err := pubsub.NewChannelPublisher[any](publisherCfg)
	if err != nil {
		return nil, errors.Trace(err)
	}

	calls := metrics.NewCollector()
	publishers := metrics.NewPublisherCollector()
	if err := publishers.Add("events", hub); err != nil {
		return nil, errors.Trace(err)
	}
	for _, c := range []prometheus.Collector{
		calls,
		publishers,
		metrics.NewManagerCollector(manager),
	} {
		if err := registerer.Register(c); err != nil {
			return nil, errors.Annotate(err, "registering metrics")
		}
	}

	stackMiddleware := []rpc.Middleware{
		middleware.Recover(loggo.GetLogger("dispatch.rpc.recover")),
		middleware.Logging(loggo.GetLogger("dispatch.rpc.calls"), clock),
		middleware.Metrics(calls, clock),
		middleware.Tracing(otel.Tracer("github.com/juju/dispatch")),
	}
	if cfg.RateLimit.Enabled() {
		rateCfg := cfg.RateLimiter()
		rateCfg.Clock = clock
		limit, err := middleware.RateLimit(rateCfg)
		if err != nil {
			return nil, errors.Trace(err)
		}
		stackMiddleware = append(stackMiddleware, limit)
	}
	if cfg.Cache.Enabled() {
		cacheCfg := cfg.QueryCache()
		cacheCfg.Clock = clock
		cache, err := middleware.NewCache(cacheCfg)
		if err != nil {
			return nil, errors.Trace(err)
		}
		stackMiddleware = append(stackMiddleware, cache.Middleware())
	}
	if cfg.Calls.Timeout > 0 {
		stackMiddleware = append(stackMiddleware, middleware.Timeout(cfg.Calls.Timeout, clock))
	}

	root := rpc.NewRouter(rpc.WithMiddleware(stackMiddleware...))
	if err := root.Register("system.ping", rpc.Query(ping)); err != nil {
		return nil, errors.Trace(err)
	}
	if err := root.Register("system.health", rpc.Query(health(manager))); err != nil {
		return nil, errors.Trace(err)
	}
	var facadeOpts []rpc.Option
	if cfg.Auth.Enabled() {
		facadeOpts = append(facadeOpts, rpc.WithContext(middleware.Auth(cfg.Authenticator(), cfg.Auth.Roles...)))
	}
	facade, err := events.NewFacade(hub).Router(facadeOpts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := root.Merge("events", facade); err != nil {
		return nil, errors.Trace(err)
	}
	router, err := root.Compile()
	if err != nil {
		return nil, errors.Trace(err)
	}

	batchCfg := cfg.BatchExecutor(router)
	batchCfg.Clock = clock
	executor, err := batch.NewExecutor(batchCfg)
	if err != nil {
		return nil, errors.Trace(err)
	}

	server, err := apiserver.NewServer(apiserver.Config{
		Router:   router,
		Manager:  manager,
		Executor: executor,
		Clock:    clock,
		Logger:   loggo.GetLogger("dispatch.apiserver"),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &stack{server: server, hub: hub}, nil
}

func ping(context.Context, any) (string, error) {
	return "pong", nil
}

type healthResult struct {
	ActiveSubscriptions int    `json:"active-subscriptions"`
	ActiveTasks         int    `json:"active-tasks"`
	Uptime              string `json:"uptime"`
	Healthy             bool   `json:"healthy"`
}

func health(manager *subscriptionmanager.Manager) rpc.HandlerFunc[any, healthResult] {
	return func(context.Context, any) (healthResult, error) {
		h := manager.Health()
		return healthResult{
			ActiveSubscriptions: h.ActiveSubscriptions,
			ActiveTasks:         h.ActiveTasks,
			Uptime:              h.Uptime.String(),
			Healthy:             h.Healthy,
		}, nil
	}
}
