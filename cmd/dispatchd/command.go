// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juju/dispatch/internal/config"
)

var logger = loggo.GetLogger("dispatch.cmd.dispatchd")

const shutdownGrace = 5 * time.Second

type dispatchCommand struct {
	configPath    string
	metricsAddr   string
	loggingConfig string
}

// SetFlags adds the command's flags to f.
func (c *dispatchCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a YAML configuration file")
	f.StringVar(&c.metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on, empty to disable")
	f.StringVar(&c.loggingConfig, "logging-config", "<root>=INFO", "loggo logging configuration")
}

// Init checks the positional arguments.
func (c *dispatchCommand) Init(args []string) error {
	if len(args) > 0 {
		return errors.Errorf("unrecognized args: %q", args)
	}
	return nil
}

// Run starts the server and blocks until ctx is done.
func (c *dispatchCommand) Run(ctx context.Context) error {
	loggo.DefaultContext().ResetLoggerLevels()
	if err := loggo.ConfigureLoggers(c.loggingConfig); err != nil {
		return errors.Annotate(err, "configuring logging")
	}

	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Read(c.configPath); err != nil {
			return errors.Trace(err)
		}
	}

	registry := prometheus.NewRegistry()
	s, err := newStack(cfg, clock.WallClock, registry)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.hub.Close()
	logger.Infof("serving %d procedures", len(s.server.Procedures()))

	var metricsServer *http.Server
	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: c.metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Infof("shutting down")
	s.server.Kill()
	err = s.server.Wait()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warningf("stopping metrics server: %v", err)
		}
	}
	return errors.Trace(err)
}
