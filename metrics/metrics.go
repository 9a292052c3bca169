// Copyright (C) 2026 The Alkymi Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE file for the full license text.

// Package metrics holds the Prometheus instrumentation surface the
// scheduler reports against during a brew: cache hit/miss counts, per-
// node execution duration, and whole-brew duration.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the scheduler updates. Construct one
// with New against a caller-supplied prometheus.Registerer rather than
// registering against the global default registry, so an embedding
// process can run more than one Session without a collector name clash.
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	NodeSeconds *prometheus.HistogramVec
	BrewSeconds prometheus.Histogram
}

// New creates and registers a Metrics bundle against reg. If reg is nil,
// the collectors are created but never registered, matching how a unit
// test exercises the scheduler without pulling in a registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alkymi",
			Name:      "cache_hits_total",
			Help:      "Number of recipe status checks that found the cached outputs still valid.",
		}, []string{"recipe"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alkymi",
			Name:      "cache_misses_total",
			Help:      "Number of recipe status checks that required re-invocation.",
		}, []string{"recipe"}),
		NodeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alkymi",
			Name:      "node_duration_seconds",
			Help:      "Time spent invoking a single recipe's bound function.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"recipe"}),
		BrewSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alkymi",
			Name:      "brew_duration_seconds",
			Help:      "Time spent executing a whole Session.Brew call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.NodeSeconds, m.BrewSeconds)
	}
	return m
}

// ObserveStatus records whether recipeName's status check found it
// clean (a cache hit) or dirty (a cache miss).
func (m *Metrics) ObserveStatus(recipeName string, dirty bool) {
	if m == nil {
		return
	}
	if dirty {
		m.CacheMisses.WithLabelValues(recipeName).Inc()
		return
	}
	m.CacheHits.WithLabelValues(recipeName).Inc()
}

// ObserveNodeDuration records how long recipeName's bound function took
// to run, in seconds.
func (m *Metrics) ObserveNodeDuration(recipeName string, seconds float64) {
	if m == nil {
		return
	}
	m.NodeSeconds.WithLabelValues(recipeName).Observe(seconds)
}

// ObserveBrewDuration records how long a whole brew took, in seconds.
func (m *Metrics) ObserveBrewDuration(seconds float64) {
	if m == nil {
		return
	}
	m.BrewSeconds.Observe(seconds)
}
