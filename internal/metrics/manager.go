// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/dispatch/internal/subscriptionmanager"
)

// ManagerSource is the part of a subscription manager read by
// ManagerCollector.
type ManagerSource interface {
	Metrics() subscriptionmanager.MetricsSnapshot
	Health() subscriptionmanager.Health
}

var (
	subscriptionsCreatedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "created_total"),
		"The number of subscriptions registered.", nil, nil)
	subscriptionsCancelledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "cancelled_total"),
		"The number of subscriptions cancelled.", nil, nil)
	subscriptionsCompletedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "completed_total"),
		"The number of subscriptions that ended normally.", nil, nil)
	subscriptionsActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "active"),
		"The number of registered subscriptions.", nil, nil)
	subscriptionsDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "duration_seconds_total"),
		"The summed lifetime of removed subscriptions.", nil, nil)
	tasksActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "tasks_active"),
		"The number of running subscription tasks.", nil, nil)
	uptimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "subscriptions", "uptime_seconds"),
		"The time since the subscription manager started.", nil, nil)
)

// ManagerCollector is a prometheus.Collector reporting the state of a
// subscription manager at scrape time.
type ManagerCollector struct {
	source ManagerSource
}

// NewManagerCollector returns a collector reading from source.
func NewManagerCollector(source ManagerSource) *ManagerCollector {
	return &ManagerCollector{source: source}
}

// Describe is part of the prometheus.Collector interface.
func (c *ManagerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- subscriptionsCreatedDesc
	ch <- subscriptionsCancelledDesc
	ch <- subscriptionsCompletedDesc
	ch <- subscriptionsActiveDesc
	ch <- subscriptionsDurationDesc
	ch <- tasksActiveDesc
	ch <- uptimeDesc
}

// Collect is part of the prometheus.Collector interface.
func (c *ManagerCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics()
	h := c.source.Health()

	ch <- prometheus.MustNewConstMetric(subscriptionsCreatedDesc, prometheus.CounterValue, float64(m.Created))
	ch <- prometheus.MustNewConstMetric(subscriptionsCancelledDesc, prometheus.CounterValue, float64(m.Cancelled))
	ch <- prometheus.MustNewConstMetric(subscriptionsCompletedDesc, prometheus.CounterValue, float64(m.Completed))
	ch <- prometheus.MustNewConstMetric(subscriptionsActiveDesc, prometheus.GaugeValue, float64(m.Active))
	ch <- prometheus.MustNewConstMetric(subscriptionsDurationDesc, prometheus.CounterValue, m.TotalDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(tasksActiveDesc, prometheus.GaugeValue, float64(h.ActiveTasks))
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, h.Uptime.Seconds())
}
