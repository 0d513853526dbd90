/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nightshift"

var (
	// ActionAttemptsTotal counts executor attempts by mode and outcome
	// (succeeded, retryable, fatal).
	ActionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_attempts_total",
		Help:      "Action attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	// ActionResultsTotal counts terminal action results by mode.
	ActionResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_results_total",
		Help:      "Terminal action results by mode and result.",
	}, []string{"mode", "result"})

	// ActionAttemptDuration observes wall time of one attempt.
	ActionAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "action_attempt_duration_seconds",
		Help:      "Duration of a single action attempt.",
		Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"mode"})

	// SchedulerWaitSeconds is the duration of the wait currently in progress.
	SchedulerWaitSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_wait_seconds",
		Help:      "Length of the scheduler wait in progress, 0 when idle.",
	})

	// SchedulerJitterSeconds observes the signed jitter applied to waits.
	SchedulerJitterSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_jitter_seconds",
		Help:      "Signed jitter applied to scheduled waits.",
		Buckets:   prometheus.LinearBuckets(-300, 60, 11),
	})

	// NotificationsTotal counts notification deliveries by channel and result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification deliveries by channel and result.",
	}, []string{"channel", "result"})

	// ShiftRunsTotal counts finished runs by terminal status.
	ShiftRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shift_runs_total",
		Help:      "Finished shift runs by terminal status.",
	}, []string{"status"})

	// RunLockHeld is 1 while this process holds the single-run lock.
	RunLockHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_lock_held",
		Help:      "Whether this process holds the single-run lock.",
	})

	// JournalQueryDuration observes action journal database operations.
	JournalQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "journal_query_duration_seconds",
		Help:      "Action journal database operation duration.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	// JournalErrorsTotal counts failed journal database operations.
	JournalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "journal_errors_total",
		Help:      "Failed action journal database operations.",
	}, []string{"operation"})

	// APIRequestsTotal counts status server requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_requests_total",
		Help:      "Status server requests by method, route and status code.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes status server latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "status_request_duration_seconds",
		Help:      "Status server request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight status server requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "status_active_requests",
		Help:      "In-flight status server requests.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
