// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/validation"
)

// Error codes in the response envelope.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternal         = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

// respondList is respondJSON for collections; the length goes in metadata.count.
func respondList(w http.ResponseWriter, r *http.Request, data interface{}, count int) {
	resp := &models.APIResponse{Status: "success", Data: data}
	resp.Metadata.Count = &count
	writeEnvelope(w, r, http.StatusOK, resp)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError) {
	writeEnvelope(w, r, status, &models.APIResponse{Status: "error", Error: apiErr})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, resp *models.APIResponse) {
	resp.Metadata.Timestamp = time.Now().UTC()
	resp.Metadata.RequestID = logging.RequestIDFromContext(r.Context())

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("failed to write JSON response")
	}
}

// writeError maps err to a status code and envelope. Internal errors are
// logged and their text is not returned to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *validation.RequestValidationError
	var fieldErr *models.ValidationError

	switch {
	case errors.As(err, &reqErr):
		respondError(w, r, http.StatusBadRequest, reqErr.ToAPIError())
	case errors.As(err, &fieldErr):
		apiErr := &models.APIError{Code: CodeValidation, Message: fieldErr.Error()}
		if fieldErr.Field != "" {
			apiErr.Details = map[string]interface{}{"field": fieldErr.Field}
		}
		respondError(w, r, http.StatusBadRequest, apiErr)
	case errors.Is(err, models.ErrValidation):
		respondError(w, r, http.StatusBadRequest, &models.APIError{Code: CodeValidation, Message: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		respondError(w, r, http.StatusNotFound, &models.APIError{Code: CodeNotFound, Message: err.Error()})
	case errors.Is(err, models.ErrPermissionDenied):
		respondError(w, r, http.StatusForbidden, &models.APIError{Code: CodePermissionDenied, Message: err.Error()})
	default:
		logging.Ctx(r.Context()).Error().
			Str("path", sanitizeLogValue(r.URL.Path)).
			Err(err).
			Msg("API request failed")
		respondError(w, r, http.StatusInternalServerError, &models.APIError{Code: CodeInternal, Message: "internal server error"})
	}
}

// sanitizeLogValue strips control characters from client-supplied values.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
