// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package detection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/validation"
)

// =====================================================
// Counting rules
// =====================================================

// CountRule flags a subject whose matching events in the trailing window
// exceed the threshold. The comparison is strict.
type CountRule struct {
	baseRule
	matches  []models.ActionMatch
	describe func(label string, threshold, minutes, count int) string
}

func (r *CountRule) Filter() []models.ActionMatch { return r.matches }

func (r *CountRule) Evaluate(ctx context.Context, in *Input) ([]Finding, error) {
	window := r.Window()
	threshold := r.Threshold()

	var scoped []models.AuditEvent
	for _, e := range in.Events {
		if inWindow(e.Timestamp, in.Now, window) && matchesAny(r.matches, e.Action) {
			scoped = append(scoped, e)
		}
	}

	since := in.Now.Add(-window)
	groups, order := groupBySubject(scoped)
	var findings []Finding
	for _, subject := range order {
		events := groups[subject]
		if len(events) <= threshold {
			continue
		}
		findings = append(findings, Finding{
			SubjectID:   subject,
			WindowStart: since,
			DedupSince:  since,
			Description: r.describe(subjectLabel(ctx, in.Directory, subject), threshold, int(window.Minutes()), len(events)),
		})
	}
	return findings, nil
}

// NewOTPBruteforceRule flags repeated failed OTP attempts.
func NewOTPBruteforceRule(cfg config.RuleConfig) *CountRule {
	return &CountRule{
		baseRule: newBaseRule(RuleOTPBruteforce, models.SeverityHigh, cfg, true),
		matches:  []models.ActionMatch{models.ExactAction("otp_failed")},
		describe: func(_ string, threshold, minutes, count int) string {
			return fmt.Sprintf("More than %d failed OTP attempts in last %d minutes: %d", threshold, minutes, count)
		},
	}
}

// NewRapidLoginsRule flags bursts of logins.
func NewRapidLoginsRule(cfg config.RuleConfig) *CountRule {
	return &CountRule{
		baseRule: newBaseRule(RuleRapidLogins, models.SeverityMedium, cfg, true),
		matches:  []models.ActionMatch{models.ExactAction("login")},
		describe: func(label string, threshold, minutes, count int) string {
			return fmt.Sprintf("User %s logged in %d times in %d minutes (threshold %d)", label, count, minutes, threshold)
		},
	}
}

// NewExcessiveDownloadsRule flags bursts of downloads.
func NewExcessiveDownloadsRule(cfg config.RuleConfig) *CountRule {
	return &CountRule{
		baseRule: newBaseRule(RuleExcessiveDownloads, models.SeverityHigh, cfg, true),
		matches:  []models.ActionMatch{models.ActionContains("downloaded")},
		describe: func(label string, threshold, minutes, count int) string {
			return fmt.Sprintf("User %s downloaded %d files in %d minutes (threshold %d)", label, count, minutes, threshold)
		},
	}
}

func matchesAny(matches []models.ActionMatch, action string) bool {
	if len(matches) == 0 {
		return true
	}
	for _, m := range matches {
		if m.Matches(action) {
			return true
		}
	}
	return false
}

// =====================================================
// Unusual-hour login
// =====================================================

// UnusualHourRule flags logins whose local hour falls in [start, end).
// It scans every login; one alert per subject per local day.
type UnusualHourRule struct {
	baseRule
	hmu       sync.RWMutex
	startHour int
	endHour   int
}

// UnusualHourSettings extends RuleSettings with the hour range.
type UnusualHourSettings struct {
	RuleSettings
	StartHour *int `json:"start_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	EndHour   *int `json:"end_hour,omitempty" validate:"omitempty,gte=1,lte=24"`
}

// NewUnusualHourRule creates the rule for the [startHour, endHour) range.
func NewUnusualHourRule(cfg config.RuleConfig, startHour, endHour int) *UnusualHourRule {
	return &UnusualHourRule{
		baseRule:  newBaseRule(RuleUnusualHourLogin, models.SeverityMedium, cfg, false),
		startHour: startHour,
		endHour:   endHour,
	}
}

func (r *UnusualHourRule) Filter() []models.ActionMatch {
	return []models.ActionMatch{models.ExactAction("login")}
}

// Hours returns the configured [start, end) range.
func (r *UnusualHourRule) Hours() (start, end int) {
	r.hmu.RLock()
	defer r.hmu.RUnlock()
	return r.startHour, r.endHour
}

func (r *UnusualHourRule) Configure(raw json.RawMessage) error {
	var s UnusualHourSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.NewValidationError("config", "invalid %s settings: %v", r.name, err)
	}
	if verr := validation.ValidateStruct(&s); verr != nil {
		return verr
	}

	start, end := r.Hours()
	if s.StartHour != nil {
		start = *s.StartHour
	}
	if s.EndHour != nil {
		end = *s.EndHour
	}
	if start >= end {
		return models.NewValidationError("start_hour", "start_hour %d must be before end_hour %d", start, end)
	}
	if err := r.apply(&s.RuleSettings); err != nil {
		return err
	}

	r.hmu.Lock()
	defer r.hmu.Unlock()
	r.startHour, r.endHour = start, end
	return nil
}

func (r *UnusualHourRule) Evaluate(ctx context.Context, in *Input) ([]Finding, error) {
	start, end := r.Hours()
	loc := locationOf(in)

	seen := make(map[string]bool)
	var findings []Finding
	for _, e := range in.Events {
		actor, ok := e.Actor()
		if !ok || e.Action != "login" || e.Timestamp.After(in.Now) {
			continue
		}
		local := e.Timestamp.In(loc)
		if local.Hour() < start || local.Hour() >= end {
			continue
		}
		day := localDay(e.Timestamp, loc)
		key := actor + "|" + day.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		findings = append(findings, Finding{
			SubjectID:   actor,
			WindowStart: day,
			Description: fmt.Sprintf("User %s logged in during unusual hours (%s)",
				subjectLabel(ctx, in.Directory, actor), local.Format("15:04 MST")),
		})
	}
	return findings, nil
}

// =====================================================
// Unauthorized access
// =====================================================

// UnauthorizedAccessRule flags access events where the subject's department
// differs from the resource's, or where the resource restricts access to
// groups the subject is not in. One alert per subject per local day.
type UnauthorizedAccessRule struct {
	baseRule
}

// NewUnauthorizedAccessRule creates the rule.
func NewUnauthorizedAccessRule(cfg config.RuleConfig) *UnauthorizedAccessRule {
	return &UnauthorizedAccessRule{
		baseRule: newBaseRule(RuleUnauthorizedAccess, models.SeverityHigh, cfg, false),
	}
}

func (r *UnauthorizedAccessRule) Filter() []models.ActionMatch {
	return []models.ActionMatch{models.ActionContains("access")}
}

func (r *UnauthorizedAccessRule) Evaluate(ctx context.Context, in *Input) ([]Finding, error) {
	if in.Directory == nil {
		return nil, fmt.Errorf("%s requires a directory", r.name)
	}
	loc := locationOf(in)
	cache := newLookupCache(in.Directory)

	seen := make(map[string]bool)
	var findings []Finding
	for _, e := range in.Events {
		actor, ok := e.Actor()
		if !ok || !strings.Contains(strings.ToLower(e.Action), "access") || e.Timestamp.After(in.Now) {
			continue
		}
		resourceID, ok := e.Resource()
		if !ok {
			continue
		}

		subject, err := cache.subject(ctx, actor)
		if err != nil {
			return nil, err
		}
		resource, err := cache.resource(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		if subject == nil || resource == nil {
			continue
		}

		reason := violation(subject, resource)
		if reason == "" {
			continue
		}

		day := localDay(e.Timestamp, loc)
		key := actor + "|" + day.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true

		label := subject.Email
		if label == "" {
			label = subject.ID
		}
		findings = append(findings, Finding{
			SubjectID:   actor,
			WindowStart: day,
			Description: fmt.Sprintf("User %s accessed resource %s outside allowed scope (%s)", label, resource.ID, reason),
		})
	}
	return findings, nil
}

func violation(subject *models.Subject, resource *models.Resource) string {
	if models.DifferentDepartment(subject.Department, resource.Department) {
		return "department mismatch"
	}
	if len(resource.AllowedGroups) > 0 && !subject.InGroup(resource.AllowedGroups) {
		return "no allowed group"
	}
	return ""
}

// =====================================================
// Suspicious sequence
// =====================================================

// SequenceRule flags a login followed later by an action containing "delete"
// and later still by an action containing "logout", all within the window.
// Events need not be contiguous.
type SequenceRule struct {
	baseRule
}

// NewSuspiciousSequenceRule creates the rule.
func NewSuspiciousSequenceRule(cfg config.RuleConfig) *SequenceRule {
	return &SequenceRule{
		baseRule: newBaseRule(RuleSuspiciousSequence, models.SeverityHigh, cfg, true),
	}
}

// Filter reads every action; the sequence spans unrelated verbs.
func (r *SequenceRule) Filter() []models.ActionMatch { return nil }

func (r *SequenceRule) Evaluate(ctx context.Context, in *Input) ([]Finding, error) {
	window := r.Window()

	var scoped []models.AuditEvent
	for _, e := range in.Events {
		if inWindow(e.Timestamp, in.Now, window) {
			scoped = append(scoped, e)
		}
	}

	since := in.Now.Add(-window)
	groups, order := groupBySubject(scoped)
	var findings []Finding
	for _, subject := range order {
		if !matchSequence(groups[subject]) {
			continue
		}
		findings = append(findings, Finding{
			SubjectID:   subject,
			WindowStart: since,
			DedupSince:  since,
			Description: fmt.Sprintf("User %s performed suspicious sequence of actions (login, delete, logout)",
				subjectLabel(ctx, in.Directory, subject)),
		})
	}
	return findings, nil
}

// matchSequence reports whether a delete and then a logout follow the first
// login. Any later login could only see a subset of what follows the first,
// so the first is sufficient.
func matchSequence(events []models.AuditEvent) bool {
	const (
		wantLogin = iota
		wantDelete
		wantLogout
	)
	state := wantLogin
	for _, e := range events {
		action := strings.ToLower(e.Action)
		switch state {
		case wantLogin:
			if action == "login" {
				state = wantDelete
			}
		case wantDelete:
			if strings.Contains(action, "delete") {
				state = wantLogout
			}
		case wantLogout:
			if strings.Contains(action, "logout") {
				return true
			}
		}
	}
	return false
}

// =====================================================
// Defaults
// =====================================================

// DefaultRules builds the six rules from cfg.
func DefaultRules(cfg *config.DetectionConfig) []Rule {
	return []Rule{
		NewOTPBruteforceRule(cfg.Rules.OTPBruteforce),
		NewRapidLoginsRule(cfg.Rules.RapidLogins),
		NewUnusualHourRule(cfg.Rules.UnusualHourLogin, cfg.UnusualHourStart, cfg.UnusualHourEnd),
		NewExcessiveDownloadsRule(cfg.Rules.ExcessiveDownloads),
		NewUnauthorizedAccessRule(cfg.Rules.UnauthorizedAccess),
		NewSuspiciousSequenceRule(cfg.Rules.SuspiciousSequence),
	}
}
