// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/websocket"
)

func (h *Handler) upgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin rejects requests without an Origin header and those
// from origins outside WSOrigins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Ctx(r.Context()).Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.deps.WSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected: origin not allowed")
	return false
}

// WebSocket upgrades the connection and attaches it to the alert hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, &models.APIError{
			Code:    "UNAVAILABLE",
			Message: "websocket push is disabled",
		})
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	websocket.NewClient(h.deps.Hub, conn).Start()
}
