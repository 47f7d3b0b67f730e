// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package scheduler runs periodic jobs under the supervisor tree.
//
// A Job is a suture.Service: it runs once at start, then on every tick,
// each run bounded by the job timeout. Errors and panics stay inside the
// run, so the supervisor only restarts a job whose loop itself fails.
// DetectionCycle chains the rule engine and the anomaly scorer into a
// single job body.
package scheduler
