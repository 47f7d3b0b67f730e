// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// ListAlerts returns alerts newest first. Cleared alerts are hidden unless
// show_cleared=true.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := alertFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	alerts, err := h.deps.Alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondList(w, r, alerts, len(alerts))
}

func alertFilter(r *http.Request) (models.AlertFilter, error) {
	q := r.URL.Query()
	filter := models.AlertFilter{Limit: defaultAlertLimit}

	if raw := q.Get("severity"); raw != "" {
		sev, err := models.ParseSeverity(raw)
		if err != nil {
			return filter, err
		}
		filter.Severity = &sev
	}
	if raw := q.Get("show_cleared"); raw != "" {
		show, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, models.NewValidationError("show_cleared", "must be a boolean, got %q", raw)
		}
		filter.IncludeCleared = show
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxAlertLimit {
			return filter, models.NewValidationError("limit", "must be between 1 and %d", maxAlertLimit)
		}
		filter.Limit = limit
	}
	return filter, nil
}

// GetAlert returns one alert.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alert, err := h.deps.Alerts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, alert)
}

// ClearAlert marks an alert cleared and returns it.
func (h *Handler) ClearAlert(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alert, err := h.deps.Alerts.Clear(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, alert)
}
