// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package models

import (
	"strings"
	"time"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sev, nil
	}
	return "", NewValidationError("severity", "unknown severity %q", s)
}

// ActionMLAnomaly is the alert action for anomaly-scorer detections.
const ActionMLAnomaly = "ml_anomaly"

// Alert is a persisted detection. Cleared is one-way; alerts are never deleted.
type Alert struct {
	ID           int64     `json:"id"`
	SubjectID    string    `json:"user"`
	SubjectEmail string    `json:"user_email"`
	Action       string    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
	Description  string    `json:"description"`
	Severity     Severity  `json:"severity"`
	Cleared      bool      `json:"cleared"`
	WindowStart  time.Time `json:"-"`
	DedupKey     string    `json:"-"`
}

// AlertDraft carries the fields of an alert that may not exist yet.
type AlertDraft struct {
	SubjectID   string
	Action      string
	WindowStart time.Time
	Description string
	Severity    Severity

	// DedupSince, when set, makes any alert with the same subject and action
	// raised at or after it absorb the draft, whatever its dedup key.
	DedupSince time.Time
}

// DedupKey identifies the alert a draft collapses into.
func (d AlertDraft) DedupKey() string {
	return d.SubjectID + "|" + d.Action + "|" + d.WindowStart.UTC().Format(time.RFC3339)
}

// AlertFilter narrows ListAlerts. A nil Severity matches all severities.
type AlertFilter struct {
	Severity       *Severity
	IncludeCleared bool
	Limit          int
}
