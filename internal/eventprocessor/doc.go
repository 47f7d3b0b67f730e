// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package eventprocessor publishes alert announcements to NATS.

The Watermill NATS publisher is wrapped in a gobreaker circuit breaker so an
unreachable broker costs one failed call per Timeout instead of one per alert.
Breaker state and transitions are exported as Prometheus metrics:

	circuit_breaker_state{name="nats-alerts"}        0=closed 1=half-open 2=open
	circuit_breaker_requests_total{result="..."}     success, failure, rejected
	circuit_breaker_transitions_total{from,to}

Usage:

	pub, err := eventprocessor.New(&cfg.NATS, logging.NewWatermillAdapter("nats"))
	if err != nil {
	    return err
	}
	defer pub.Close()
	manager.RegisterPublisher(alerts.NewWatermillPublisher("nats", cfg.NATS.Subject, pub))

Each message carries its UUID as the Nats-Msg-Id header, so JetStream drops
retransmissions within the stream's duplicate window.
*/
package eventprocessor
