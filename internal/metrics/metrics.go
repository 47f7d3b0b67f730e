// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection Metrics
	RuleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rule_evaluations_total",
			Help: "Total number of rule evaluations",
		},
		[]string{"rule"},
	)

	RuleFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rule_findings_total",
			Help: "Total number of findings produced by a rule",
		},
		[]string{"rule"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_rule_errors_total",
			Help: "Total number of rule evaluation failures, including recovered panics",
		},
		[]string{"rule", "kind"}, // "error", "panic"
	)

	RuleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detection_rule_duration_seconds",
			Help:    "Duration of a single rule evaluation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rule"},
	)

	DetectionRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_run_duration_seconds",
			Help:    "Duration of a full detection cycle in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	DetectionRunsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_runs_skipped_total",
			Help: "Detection runs skipped by the bootstrap guard",
		},
	)

	// Alert Metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"action", "severity"},
	)

	AlertsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_deduplicated_total",
			Help: "Alert creations suppressed because the dedup key already existed",
		},
		[]string{"action"},
	)

	AlertsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_cleared_total",
			Help: "Total number of alerts cleared",
		},
	)

	AlertPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_publish_failures_total",
			Help: "Alert announcements a publisher failed to deliver",
		},
		[]string{"publisher"},
	)

	// Anomaly Metrics
	AnomalyScoresRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_scores_recorded_total",
			Help: "Total number of anomaly scores recorded",
		},
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_subjects_flagged_total",
			Help: "Total number of subjects flagged as anomalous",
		},
	)

	AnomalyModelUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomaly_model_unavailable_total",
			Help: "Scoring runs skipped because the model artifact was missing",
		},
	)

	AnomalyModelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_model_loads_total",
			Help: "Model artifact loads by source",
		},
		[]string{"source"}, // "file", "s3"
	)

	// Authorization Metrics
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"decision", "source"},
	)

	AuthzDecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authz_decision_duration_seconds",
			Help:    "Duration of authorization decisions in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// NATS Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of alert messages published to NATS",
		},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordRuleEvaluation records one rule evaluation. kind is empty on success.
func RecordRuleEvaluation(rule string, duration time.Duration, findings int, kind string) {
	RuleEvaluations.WithLabelValues(rule).Inc()
	RuleDuration.WithLabelValues(rule).Observe(duration.Seconds())
	if findings > 0 {
		RuleFindings.WithLabelValues(rule).Add(float64(findings))
	}
	if kind != "" {
		RuleErrors.WithLabelValues(rule, kind).Inc()
	}
}

// RecordAlert records the outcome of a get-or-create on an alert dedup key.
func RecordAlert(action, severity string, created bool) {
	if created {
		AlertsCreated.WithLabelValues(action, severity).Inc()
		return
	}
	AlertsDeduplicated.WithLabelValues(action).Inc()
}

// RecordAuthzDecision records an authorization decision.
func RecordAuthzDecision(allowed bool, source string, duration time.Duration) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	AuthzDecisions.WithLabelValues(decision, source).Inc()
	AuthzDecisionDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records HTTP request metrics.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
