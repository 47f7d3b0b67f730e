// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"net/http"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// CreateEvent appends an audit event. The client address is recorded when
// the payload carries no ip.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in models.EventInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.IP == "" {
		in.IP = clientIP(r)
	}
	if err := validate(&in); err != nil {
		writeError(w, r, err)
		return
	}

	event, err := h.deps.Events.AppendEvent(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Int64("event_id", event.ID).
		Str("action", sanitizeLogValue(event.Action)).
		Msg("audit event recorded")
	respondJSON(w, r, http.StatusCreated, event)
}
