// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and are
exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

Detection Metrics:
  - detection_rule_evaluations_total, detection_rule_findings_total (labels: rule)
  - detection_rule_errors_total (labels: rule, kind)
  - detection_rule_duration_seconds, detection_run_duration_seconds
  - detection_runs_skipped_total

Alert Metrics:
  - alerts_created_total (labels: action, severity)
  - alerts_deduplicated_total (labels: action)
  - alert_publish_failures_total (labels: publisher)

Anomaly Metrics:
  - anomaly_scores_recorded_total, anomaly_subjects_flagged_total
  - anomaly_model_unavailable_total, anomaly_model_loads_total (labels: source)

Authorization Metrics:
  - authz_decisions_total (labels: decision, source)
  - authz_decision_duration_seconds

HTTP, WebSocket, circuit breaker and NATS publisher metrics follow the same
naming scheme.
*/
package metrics
