// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics

import (
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/dispatch/pubsub"
)

// PublisherSource is anything reporting publisher metrics: a single
// publisher or a ChannelPublisher.
type PublisherSource interface {
	Metrics() pubsub.MetricsSnapshot
}

var publisherLabels = []string{"publisher"}

var (
	publishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "published_total"),
		"The number of events appended to the log.", publisherLabels, nil)
	noSubscribersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "no_subscribers_total"),
		"The number of publishes with nobody listening.", publisherLabels, nil)
	failedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "failed_total"),
		"The number of publishes that failed.", publisherLabels, nil)
	droppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "dropped_total"),
		"The number of events evicted before every subscriber read them.", publisherLabels, nil)
	laggedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "lagged_total"),
		"The number of events subscribers were moved past.", publisherLabels, nil)
	blockedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "blocked_total"),
		"The number of publishes that waited for room.", publisherLabels, nil)
	subscribersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "publisher", "subscribers"),
		"The number of live subscribers.", publisherLabels, nil)
)

// PublisherCollector is a prometheus.Collector reporting the metrics of a
// set of named publishers at scrape time.
type PublisherCollector struct {
	mu      sync.Mutex
	sources map[string]PublisherSource
}

// NewPublisherCollector returns an empty collector.
func NewPublisherCollector() *PublisherCollector {
	return &PublisherCollector{
		sources: make(map[string]PublisherSource),
	}
}

// Add reports source under name.
func (c *PublisherCollector) Add(name string, source PublisherSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[name]; ok {
		return errors.AlreadyExistsf("publisher %q", name)
	}
	c.sources[name] = source
	return nil
}

// Remove stops reporting name.
func (c *PublisherCollector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe is part of the prometheus.Collector interface.
func (c *PublisherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- publishedDesc
	ch <- noSubscribersDesc
	ch <- failedDesc
	ch <- droppedDesc
	ch <- laggedDesc
	ch <- blockedDesc
	ch <- subscribersDesc
}

// Collect is part of the prometheus.Collector interface.
func (c *PublisherCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	sources := make([]PublisherSource, len(names))
	for i, name := range names {
		sources[i] = c.sources[name]
	}
	c.mu.Unlock()

	for i, name := range names {
		m := sources[i].Metrics()
		counter := func(desc *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), name)
		}
		counter(publishedDesc, m.Published)
		counter(noSubscribersDesc, m.NoSubscribers)
		counter(failedDesc, m.Failed)
		counter(droppedDesc, m.Dropped)
		counter(laggedDesc, m.Lagged)
		counter(blockedDesc, m.Blocked)
		ch <- prometheus.MustNewConstMetric(subscribersDesc, prometheus.GaugeValue, float64(m.Subscribers), name)
	}
}
