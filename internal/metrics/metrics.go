// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics exposes dispatch activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dispatch"

// Collector is a prometheus.Collector that collects metrics about
// procedure calls.
type Collector struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	inflight     *prometheus.GaugeVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "The number of procedure calls, by outcome.",
			}, []string{"path", "type", "code"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "The time taken to serve a procedure call.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"path", "type"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "calls_inflight",
				Help:      "The number of procedure calls being served.",
			}, []string{"type"},
		),
	}
}

// TrackInflight counts a call of the given type as in flight until the
// returned function is called.
func (c *Collector) TrackInflight(typ string) func() {
	gauge := c.inflight.WithLabelValues(typ)
	gauge.Inc()
	return gauge.Dec
}

// ObserveCall records a finished call. An empty code is recorded as "ok".
func (c *Collector) ObserveCall(path, typ, code string, d time.Duration) {
	if code == "" {
		code = "ok"
	}
	c.calls.WithLabelValues(path, typ, code).Inc()
	c.callDuration.WithLabelValues(path, typ).Observe(d.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calls.Describe(ch)
	c.callDuration.Describe(ch)
	c.inflight.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calls.Collect(ch)
	c.callDuration.Collect(ch)
	c.inflight.Collect(ch)
}
