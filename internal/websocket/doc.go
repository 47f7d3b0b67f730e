// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package websocket pushes alert announcements to connected dashboards.

The Hub owns the client set and fans out every broadcast to each client's
buffered send channel. A client whose buffer is full is dropped rather than
allowed to stall the hub. Each client runs a read pump and a write pump; the
write pump sends keepalive pings and the read pump answers application-level
"ping" messages with "pong".

Inbound messages are rate limited per client with golang.org/x/time/rate. A
client that keeps sending past its budget is disconnected.

Message format:

	{"type": "alert.created", "alert": {"id": 7, "user": "u-42", ...}}

The hub runs under the supervisor via RunWithContext and closes every client
when its context ends.
*/
package websocket
