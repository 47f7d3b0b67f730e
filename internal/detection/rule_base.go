// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/validation"
)

// RuleSettings is the JSON accepted by Rule.Configure. Absent fields keep
// their current value. Window is a Go duration string such as "15m".
type RuleSettings struct {
	Enabled   *bool   `json:"enabled,omitempty"`
	Threshold *int    `json:"threshold,omitempty" validate:"omitempty,gte=0"`
	Window    *string `json:"window,omitempty"`
}

// baseRule carries the settings shared by every rule.
type baseRule struct {
	mu        sync.RWMutex
	name      string
	severity  models.Severity
	enabled   bool
	threshold int
	window    time.Duration
	bounded   bool
}

func newBaseRule(name string, severity models.Severity, cfg config.RuleConfig, bounded bool) baseRule {
	return baseRule{
		name:      name,
		severity:  severity,
		enabled:   cfg.Enabled,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		bounded:   bounded,
	}
}

func (r *baseRule) Name() string { return r.name }

func (r *baseRule) Severity() models.Severity { return r.severity }

// Window returns zero for rules that scan without a window.
func (r *baseRule) Window() time.Duration {
	if !r.bounded {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.window
}

func (r *baseRule) Threshold() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

func (r *baseRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

func (r *baseRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *baseRule) Configure(raw json.RawMessage) error {
	var s RuleSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.NewValidationError("config", "invalid %s settings: %v", r.name, err)
	}
	return r.apply(&s)
}

func (r *baseRule) apply(s *RuleSettings) error {
	if verr := validation.ValidateStruct(s); verr != nil {
		return verr
	}
	var window time.Duration
	if s.Window != nil {
		d, err := time.ParseDuration(*s.Window)
		if err != nil || d <= 0 {
			return models.NewValidationError("window", "window must be a positive duration, got %q", *s.Window)
		}
		window = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Enabled != nil {
		r.enabled = *s.Enabled
	}
	if s.Threshold != nil {
		r.threshold = *s.Threshold
	}
	if s.Window != nil {
		r.window = window
	}
	return nil
}

// groupBySubject buckets events by actor, preserving order. Events without an
// actor are dropped.
func groupBySubject(events []models.AuditEvent) (map[string][]models.AuditEvent, []string) {
	groups := make(map[string][]models.AuditEvent)
	var order []string
	for _, e := range events {
		actor, ok := e.Actor()
		if !ok {
			continue
		}
		if _, seen := groups[actor]; !seen {
			order = append(order, actor)
		}
		groups[actor] = append(groups[actor], e)
	}
	return groups, order
}

// inWindow reports whether ts lies in [now-window, now]. A zero window is unbounded.
func inWindow(ts, now time.Time, window time.Duration) bool {
	if ts.After(now) {
		return false
	}
	return window <= 0 || !ts.Before(now.Add(-window))
}

// localDay truncates ts to midnight in loc.
func localDay(ts time.Time, loc *time.Location) time.Time {
	l := ts.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// subjectLabel returns the subject's email, falling back to its id.
func subjectLabel(ctx context.Context, dir Directory, id string) string {
	if dir == nil {
		return id
	}
	s, err := dir.GetSubject(ctx, id)
	if err != nil || s.Email == "" {
		return id
	}
	return s.Email
}

// lookupCache memoizes directory reads within one evaluation.
type lookupCache struct {
	dir       Directory
	subjects  map[string]*models.Subject
	resources map[string]*models.Resource
}

func newLookupCache(dir Directory) *lookupCache {
	return &lookupCache{
		dir:       dir,
		subjects:  make(map[string]*models.Subject),
		resources: make(map[string]*models.Resource),
	}
}

// subject returns nil without error when the subject does not exist.
func (c *lookupCache) subject(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := c.subjects[id]; ok {
		return s, nil
	}
	s, err := c.dir.GetSubject(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup subject %s: %w", id, err)
	}
	c.subjects[id] = s
	return s, nil
}

// resource returns nil without error when the resource does not exist.
func (c *lookupCache) resource(ctx context.Context, id string) (*models.Resource, error) {
	if r, ok := c.resources[id]; ok {
		return r, nil
	}
	r, err := c.dir.GetResource(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup resource %s: %w", id, err)
	}
	c.resources[id] = r
	return r, nil
}
