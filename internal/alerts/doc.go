// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package alerts implements the alert manager.
//
// The manager owns the alert lifecycle: get-or-create on a dedup key, one-way
// clearing, listing, and announcing newly created alerts to every registered
// Publisher. Announcements are fire-and-forget; a failing publisher is logged
// and counted but never fails the caller.
//
// Publishers:
//   - BroadcastPublisher: pushes to the websocket hub
//   - WatermillPublisher: publishes JSON messages on any watermill
//     message.Publisher (NATS in production, gochannel in tests)
package alerts
