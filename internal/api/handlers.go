// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/access"
	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/validation"
	"github.com/tomtom215/insiderwatch/internal/websocket"
)

const (
	maxBodyBytes      = 64 * 1024
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

// EventStore appends audit events.
type EventStore interface {
	AppendEvent(ctx context.Context, in *models.EventInput) (*models.AuditEvent, error)
}

// AlertService is the alert manager surface the API needs.
type AlertService interface {
	Get(ctx context.Context, id int64) (*models.Alert, error)
	Clear(ctx context.Context, id int64) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
}

// AccessService resolves and authorizes access.
type AccessService interface {
	Resolve(ctx context.Context, subjectID, resourceID string) (access.Decision, error)
	Authorize(ctx context.Context, subjectID, resourceID, action string) (bool, error)
}

// DirectoryStore maintains subjects, resources and grants.
type DirectoryStore interface {
	UpsertSubject(ctx context.Context, s *models.Subject) error
	UpsertResource(ctx context.Context, r *models.Resource) error
	PutGrant(ctx context.Context, g *models.Grant) error
	DeleteGrant(ctx context.Context, kind models.GrantKind, principal, resourceID string) error
	ListGrants(ctx context.Context, resourceID string) ([]models.Grant, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler. Hub may be nil to disable /ws.
type Deps struct {
	Events    EventStore
	Alerts    AlertService
	Access    AccessService
	Directory DirectoryStore
	Health    Pinger
	Hub       *websocket.Hub
	// WSOrigins lists origins allowed to open the websocket; "*" allows any.
	WSOrigins []string
}

// Handler serves the HTTP API.
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// decodeBody reads a size-limited JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return models.NewValidationError("body", "unreadable request body: %v", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return models.NewValidationError("body", "malformed JSON: %v", err)
	}
	return nil
}

func validate(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// clientIP returns the request's client address without the port.
// chi's RealIP middleware has already applied X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("id", "invalid alert id %q", raw)
	}
	return id, nil
}

func requiredQuery(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", models.NewValidationError(name, "%s is required", name)
	}
	return v, nil
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"database":       "ok",
	}
	code := http.StatusOK

	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = fmt.Sprintf("unreachable: %v", err)
			code = http.StatusServiceUnavailable
		}
	}
	if h.deps.Hub != nil {
		status["websocket_clients"] = h.deps.Hub.GetClientCount()
	}
	respondJSON(w, r, code, status)
}
