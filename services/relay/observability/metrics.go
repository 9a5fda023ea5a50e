// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability owns the relay's Prometheus metrics and OTLP
// trace wiring.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

// Turn metrics.
var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Chat turns routed, by mode and status.",
	}, []string{"mode", "status"})

	PlanningLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "planning_latency_seconds",
		Help:      "Wall-clock latency of the dual-mode planning call.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	ExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_latency_seconds",
		Help:      "Wall-clock latency of the dual-mode execution call.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// Background-work metrics.
var (
	ActiveWebsockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websockets",
		Help:      "Connected dashboard websocket subscribers.",
	})

	ComboRunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "combo_runs_in_flight",
		Help:      "Combo evaluation runs currently executing.",
	})

	ProbeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_runs_total",
		Help:      "Completed profile runs, by status.",
	}, []string{"status"})

	FailureLogWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failure_log_writes_total",
		Help:      "Entries appended to the failure journal.",
	})
)
