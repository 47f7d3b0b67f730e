// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package detection

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// Rule names. They double as the alert action of each rule.
const (
	RuleOTPBruteforce      = "otp_bruteforce"
	RuleRapidLogins        = "rapid_logins"
	RuleUnusualHourLogin   = "unusual_hour_login"
	RuleExcessiveDownloads = "excessive_downloads"
	RuleUnauthorizedAccess = "unauthorized_access"
	RuleSuspiciousSequence = "suspicious_sequence"
)

// Rule is a stateless detector over a window of audit events.
type Rule interface {
	// Name returns the rule name, also used as the alert action.
	Name() string

	// Window returns the trailing window the rule reads. Zero means unbounded.
	Window() time.Duration

	// Severity returns the severity of alerts raised by the rule.
	Severity() models.Severity

	// Filter returns the action matches the rule reads. Nil reads every action.
	Filter() []models.ActionMatch

	// Evaluate returns the findings for the events in in. It must not mutate state.
	Evaluate(ctx context.Context, in *Input) ([]Finding, error)

	// Configure updates the rule settings from JSON.
	Configure(raw json.RawMessage) error

	// Enabled returns whether the rule is evaluated.
	Enabled() bool

	// SetEnabled enables or disables the rule.
	SetEnabled(enabled bool)
}

// Directory is the read side of the subject/resource directory.
type Directory interface {
	GetSubject(ctx context.Context, id string) (*models.Subject, error)
	GetResource(ctx context.Context, id string) (*models.Resource, error)
}

// Input is the snapshot a rule evaluates.
type Input struct {
	// Now is fixed for the whole run.
	Now time.Time

	// Events is ascending by timestamp and already narrowed to the rule's
	// window and filter.
	Events []models.AuditEvent

	// Directory resolves subjects and resources.
	Directory Directory

	// Location is the time zone used for hour-of-day and day boundaries.
	Location *time.Location
}

// Finding is one detection. The engine turns it into an alert draft.
type Finding struct {
	SubjectID   string
	WindowStart time.Time
	Description string

	// DedupSince is copied to the alert draft. Rolling-window rules set it to
	// the start of their lookback.
	DedupSince time.Time
}

// EventSource reads audit events.
type EventSource interface {
	EventsBetween(ctx context.Context, since, until time.Time, matches ...models.ActionMatch) ([]models.AuditEvent, error)
}

// AlertSink receives findings as alert drafts.
type AlertSink interface {
	CreateOrGet(ctx context.Context, draft *models.AlertDraft) (*models.Alert, bool, error)
}

// RunReport summarizes one engine run.
type RunReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Rules     []RuleReport  `json:"rules"`
	Created   int           `json:"created"`
	Existing  int           `json:"existing"`
}

// RuleReport summarizes one rule within a run.
type RuleReport struct {
	Rule     string `json:"rule"`
	Events   int    `json:"events"`
	Findings int    `json:"findings"`
	Created  int    `json:"created"`
	Error    string `json:"error,omitempty"`
}
