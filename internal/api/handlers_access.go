// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/insiderwatch/internal/access"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// AuthorizeRequest is the body of POST /access/authorize.
type AuthorizeRequest struct {
	Subject  string `json:"subject" validate:"required,max=128"`
	Resource string `json:"resource" validate:"required,max=128"`
	Action   string `json:"action" validate:"required,max=64"`
}

// AuthorizeResponse is the authorization verdict.
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// ResolveAccess returns the effective level of a subject on a resource.
func (h *Handler) ResolveAccess(w http.ResponseWriter, r *http.Request) {
	subject, err := requiredQuery(r, "subject")
	if err != nil {
		writeError(w, r, err)
		return
	}
	resource, err := requiredQuery(r, "resource")
	if err != nil {
		writeError(w, r, err)
		return
	}

	decision, err := h.deps.Access.Resolve(r.Context(), subject, resource)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, decision)
}

// Authorize decides whether a subject may perform an action on a resource.
// A denial is a normal 200 response with allowed=false.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate(&req); err != nil {
		writeError(w, r, err)
		return
	}

	allowed, err := h.deps.Access.Authorize(r.Context(), req.Subject, req.Resource, req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, AuthorizeResponse{Allowed: allowed})
}

// PutSubject creates or replaces a directory subject. The path id wins over
// any id in the body.
func (h *Handler) PutSubject(w http.ResponseWriter, r *http.Request) {
	var s models.Subject
	if err := decodeBody(w, r, &s); err != nil {
		writeError(w, r, err)
		return
	}
	s.ID = chi.URLParam(r, "id")
	if err := validate(&s); err != nil {
		writeError(w, r, err)
		return
	}
	if s.Role != nil {
		if err := validate(s.Role); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := h.deps.Directory.UpsertSubject(r.Context(), &s); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, s)
}

// PutResource creates or replaces a resource.
func (h *Handler) PutResource(w http.ResponseWriter, r *http.Request) {
	var res models.Resource
	if err := decodeBody(w, r, &res); err != nil {
		writeError(w, r, err)
		return
	}
	res.ID = chi.URLParam(r, "id")
	if err := validate(&res); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Directory.UpsertResource(r.Context(), &res); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

// ListGrants returns the explicit grants on ?resource=.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	resource, err := requiredQuery(r, "resource")
	if err != nil {
		writeError(w, r, err)
		return
	}
	grants, err := h.deps.Directory.ListGrants(r.Context(), resource)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if grants == nil {
		grants = []models.Grant{}
	}
	respondList(w, r, grants, len(grants))
}

// PutGrant creates or replaces a grant.
func (h *Handler) PutGrant(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, models.NewValidationError("body", "unreadable request body: %v", err))
		return
	}
	grant, err := access.ParseGrant(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Directory.PutGrant(r.Context(), grant); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, grant)
}

// DeleteGrant removes the grant named by ?kind=&principal=&resource=.
func (h *Handler) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	var params [3]string
	for i, name := range []string{"kind", "principal", "resource"} {
		v, err := requiredQuery(r, name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		params[i] = v
	}
	kind := models.GrantKind(params[0])
	switch kind {
	case models.GrantUser, models.GrantRole, models.GrantGroup:
	default:
		writeError(w, r, models.NewValidationError("kind", "unknown grant kind %q", params[0]))
		return
	}

	if err := h.deps.Directory.DeleteGrant(r.Context(), kind, params[1], params[2]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
