// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package middleware holds the chi middleware shared by every API route:
// request ids wired into the logging context, and Prometheus request metrics
// labeled by route pattern.
package middleware
