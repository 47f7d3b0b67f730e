// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package models

import (
	"strings"
	"time"
)

// AuditEvent records an actor performing an action, optionally on a resource.
// Events are immutable once written.
type AuditEvent struct {
	ID         int64                  `json:"id"`
	ActorID    *string                `json:"actor_id,omitempty"`
	Action     string                 `json:"action"`
	ResourceID *string                `json:"resource_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	IP         string                 `json:"ip,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Actor returns the actor ID and whether one is set.
func (e *AuditEvent) Actor() (string, bool) {
	if e.ActorID == nil || *e.ActorID == "" {
		return "", false
	}
	return *e.ActorID, true
}

// Resource returns the resource ID and whether one is set.
func (e *AuditEvent) Resource() (string, bool) {
	if e.ResourceID == nil || *e.ResourceID == "" {
		return "", false
	}
	return *e.ResourceID, true
}

// EventInput is the ingestion contract. The timestamp is assigned by the store.
type EventInput struct {
	ActorID    *string                `json:"actor_id,omitempty" validate:"omitempty,min=1,max=128"`
	Action     string                 `json:"action" validate:"required,min=1,max=128"`
	ResourceID *string                `json:"resource_id,omitempty" validate:"omitempty,min=1,max=128"`
	IP         string                 `json:"ip,omitempty" validate:"omitempty,ip"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ActionMatch selects events by action. Exact compares verbatim; Contains is a
// case-insensitive substring test. Exact wins when both are set.
type ActionMatch struct {
	Exact    string
	Contains string
}

// ExactAction matches action exactly.
func ExactAction(action string) ActionMatch {
	return ActionMatch{Exact: action}
}

// ActionContains matches any action containing substr, ignoring case.
func ActionContains(substr string) ActionMatch {
	return ActionMatch{Contains: strings.ToLower(substr)}
}

// Matches reports whether action satisfies m.
func (m ActionMatch) Matches(action string) bool {
	if m.Exact != "" {
		return action == m.Exact
	}
	return strings.Contains(strings.ToLower(action), strings.ToLower(m.Contains))
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
