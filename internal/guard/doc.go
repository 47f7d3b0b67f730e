// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package guard suppresses redundant runs of a job within a TTL.
//
// The scheduler asks the guard before the first detection cycle after
// startup; when another process (or an earlier start of this one) ran the
// cycle within the TTL, the cycle is skipped. Backends are in-process
// memory, a badger TTL entry, or redis SET NX. AllowOnError wraps every
// backend so an unreachable guard allows the run instead of blocking it.
package guard
