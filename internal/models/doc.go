// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package models defines the data structures shared across Insiderwatch.

This package is the single source of truth for the domain vocabulary used by the
detection, anomaly, alerting and access packages. It has no dependencies on
storage or transport.

Key Components:

  - AuditEvent / EventInput: append-only record of an actor touching a resource
  - Subject / Role / Resource: the directory consulted by rules and access checks
  - AccessLevel: the canonical permission lattice (none is the bottom)
  - Grant: a stored (user|role|group, resource, level) tuple
  - Alert / AlertDraft / AlertFilter: persisted detections and their dedup identity
  - AnomalyScore / FeatureVector: per-subject anomaly scoring inputs and outputs
  - APIResponse / APIError: the JSON envelope returned by the HTTP adapters

Error Taxonomy:

  - ErrNotFound: subject, resource or alert lookup miss
  - ErrValidation and *ValidationError: malformed input (e.g. a non-enum access level)
  - ErrPermissionDenied: an authorization check returned deny
  - ErrModelUnavailable: the anomaly model artifact is missing

Duplicate suppression is not an error: get-or-create paths report created=false.

Thread Safety:

All types are plain values. Callers sharing a value across goroutines must not
mutate it concurrently.
*/
package models
