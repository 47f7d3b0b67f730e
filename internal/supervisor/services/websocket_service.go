// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/insiderwatch/internal/logging"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the alert websocket hub under the supervisor.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub, name: "websocket-hub"}
}

// Serve implements suture.Service. The hub closes its clients before
// returning. Any exit other than cancellation is an error so the supervisor
// restarts the hub.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	err := w.hub.RunWithContext(ctx)
	if ctx.Err() != nil {
		logging.Info().Str("component", w.name).Msg("alert hub stopped")
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("hub exited")
	}
	return fmt.Errorf("%s: %w", w.name, err)
}

// String implements fmt.Stringer for suture logging.
func (w *WebSocketHubService) String() string {
	return w.name
}
