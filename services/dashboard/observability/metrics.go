// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the dashboard
// sync engine.
//
// # Description
//
// Counters cover the synchronization hot paths:
//   - Fetches by resource and status, plus deduplicated shares
//   - Push events by kind, and push reconnect attempts
//   - Debounced stats refresh firings
//   - Swallowed cache write failures
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking. All record methods are nil-receiver safe so callers never
// guard metric calls.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "komorebi"

const dashboardSubsystem = "dashboard"

// SyncMetrics holds all Prometheus metrics for the sync engine.
type SyncMetrics struct {
	// FetchesTotal counts fetch executions by resource and outcome.
	// Labels: resource (chunks, projects, stats, search, entities),
	// status (success, error)
	FetchesTotal *prometheus.CounterVec

	// FetchesSharedTotal counts calls that piggybacked on an
	// in-flight fetch instead of issuing their own request.
	// Labels: resource
	FetchesSharedTotal *prometheus.CounterVec

	// PushEventsTotal counts push events by kind, including unknown
	// kinds under their literal type string.
	// Labels: kind
	PushEventsTotal *prometheus.CounterVec

	// PushReconnectsTotal counts reconnection attempts after a lost
	// push connection.
	PushReconnectsTotal prometheus.Counter

	// RefreshesTotal counts debounced stats refresh firings.
	RefreshesTotal prometheus.Counter

	// CacheWriteFailuresTotal counts swallowed snapshot cache write
	// failures.
	CacheWriteFailuresTotal prometheus.Counter
}

// NewSyncMetrics creates and registers all sync metrics on reg.
//
// # Inputs
//
//   - reg: Target registry. Nil uses the default registerer.
//
// # Limitations
//
//   - Panics on duplicate registration, so create once per registry.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &SyncMetrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "fetches_total",
				Help:      "Total fetch executions by resource and status",
			},
			[]string{"resource", "status"},
		),

		FetchesSharedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "fetches_shared_total",
				Help:      "Total fetch calls deduplicated onto an in-flight request",
			},
			[]string{"resource"},
		),

		PushEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "push_events_total",
				Help:      "Total push events received by kind",
			},
			[]string{"kind"},
		),

		PushReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "push_reconnects_total",
				Help:      "Total push channel reconnection attempts",
			},
		),

		RefreshesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "refreshes_total",
				Help:      "Total debounced stats refresh firings",
			},
		),

		CacheWriteFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "cache_write_failures_total",
				Help:      "Total swallowed snapshot cache write failures",
			},
		),
	}
}

// RecordFetch records one completed fetch execution.
func (m *SyncMetrics) RecordFetch(resource string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.FetchesTotal.WithLabelValues(resource, status).Inc()
}

// RecordSharedFetch records a call that joined an in-flight fetch.
func (m *SyncMetrics) RecordSharedFetch(resource string) {
	if m == nil {
		return
	}
	m.FetchesSharedTotal.WithLabelValues(resource).Inc()
}

// RecordPushEvent records one received push event.
func (m *SyncMetrics) RecordPushEvent(kind string) {
	if m == nil {
		return
	}
	m.PushEventsTotal.WithLabelValues(kind).Inc()
}

// RecordReconnect records one reconnection attempt.
func (m *SyncMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.PushReconnectsTotal.Inc()
}

// RecordRefresh records one debounced refresh firing.
func (m *SyncMetrics) RecordRefresh() {
	if m == nil {
		return
	}
	m.RefreshesTotal.Inc()
}

// RecordCacheWriteFailure records one swallowed cache write failure.
func (m *SyncMetrics) RecordCacheWriteFailure() {
	if m == nil {
		return
	}
	m.CacheWriteFailuresTotal.Inc()
}
