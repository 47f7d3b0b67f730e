// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package detection

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// Engine evaluates the registered rules over a fixed snapshot and turns
// findings into alerts.
type Engine struct {
	events    EventSource
	directory Directory
	alerts    AlertSink

	mu       sync.RWMutex
	rules    map[string]Rule
	order    []string
	location *time.Location
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the time zone for hour-of-day and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine with no rules registered.
func NewEngine(events EventSource, directory Directory, alerts AlertSink, opts ...Option) *Engine {
	e := &Engine{
		events:    events,
		directory: directory,
		alerts:    alerts,
		rules:     make(map[string]Rule),
		location:  time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterRule adds a rule. Names must be unique.
func (e *Engine) RegisterRule(rule Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := rule.Name()
	if _, exists := e.rules[name]; exists {
		return fmt.Errorf("rule %q already registered", name)
	}
	e.rules[name] = rule
	e.order = append(e.order, name)

	logging.Info().Str("rule", name).Bool("enabled", rule.Enabled()).Msg("registered detection rule")
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.rules[name])
	}
	return out
}

// Rule returns the named rule or ErrNotFound.
func (e *Engine) Rule(name string) (Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rule, ok := e.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", name, models.ErrNotFound)
	}
	return rule, nil
}

// SetRuleEnabled enables or disables the named rule.
func (e *Engine) SetRuleEnabled(name string, enabled bool) error {
	rule, err := e.Rule(name)
	if err != nil {
		return err
	}
	rule.SetEnabled(enabled)
	logging.Info().Str("rule", name).Bool("enabled", enabled).Msg("detection rule toggled")
	return nil
}

// ConfigureRule applies JSON settings to the named rule.
func (e *Engine) ConfigureRule(name string, raw json.RawMessage) error {
	rule, err := e.Rule(name)
	if err != nil {
		return err
	}
	if err := rule.Configure(raw); err != nil {
		return err
	}
	logging.Info().Str("rule", name).RawJSON("settings", raw).Msg("detection rule configured")
	return nil
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	return e.location
}

// Run evaluates every enabled rule once. now is fixed for the whole run and
// each rule reads its own snapshot. A failing rule does not stop the others;
// its error is joined into the returned error.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	now := e.now()
	report := &RunReport{StartedAt: now}
	start := time.Now()

	var errs []error
	for _, rule := range e.Rules() {
		if !rule.Enabled() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		rr, err := e.runRule(ctx, rule, now)
		report.Rules = append(report.Rules, rr.RuleReport)
		report.Created += rr.Created
		report.Existing += rr.existing
		if err != nil {
			errs = append(errs, err)
		}
	}

	report.Duration = time.Since(start)
	metrics.DetectionRunDuration.Observe(report.Duration.Seconds())

	logging.Ctx(ctx).Info().
		Int("rules", len(report.Rules)).
		Int("created", report.Created).
		Int("existing", report.Existing).
		Dur("duration", report.Duration).
		Msg("detection run complete")

	return report, errors.Join(errs...)
}

type ruleResult struct {
	RuleReport
	existing int
}

func (e *Engine) runRule(ctx context.Context, rule Rule, now time.Time) (ruleResult, error) {
	name := rule.Name()
	ctx = logging.ContextWithRule(ctx, name)
	res := ruleResult{RuleReport: RuleReport{Rule: name}}
	start := time.Now()

	findings, events, err := e.evaluate(ctx, rule, now)
	if err != nil {
		kind := "error"
		var pe *panicError
		if errors.As(err, &pe) {
			kind = "panic"
		}
		metrics.RecordRuleEvaluation(name, time.Since(start), 0, kind)
		res.Events = events
		res.Error = err.Error()
		logging.Ctx(ctx).Error().Err(err).Msg("detection rule failed")
		return res, fmt.Errorf("rule %s: %w", name, err)
	}
	metrics.RecordRuleEvaluation(name, time.Since(start), len(findings), "")

	res.Events = events
	res.Findings = len(findings)

	sort.SliceStable(findings, func(i, j int) bool { return findings[i].SubjectID < findings[j].SubjectID })
	var errs []error
	for _, f := range findings {
		draft := &models.AlertDraft{
			SubjectID:   f.SubjectID,
			Action:      name,
			WindowStart: f.WindowStart,
			DedupSince:  f.DedupSince,
			Description: f.Description,
			Severity:    rule.Severity(),
		}
		_, created, err := e.alerts.CreateOrGet(ctx, draft)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: alert for %s: %w", name, f.SubjectID, err))
			continue
		}
		if created {
			res.Created++
		} else {
			res.existing++
		}
	}
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		res.Error = joined.Error()
		return res, joined
	}
	return res, nil
}

type panicError struct {
	value interface{}
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// evaluate reads the rule's snapshot and runs it with panic recovery.
func (e *Engine) evaluate(ctx context.Context, rule Rule, now time.Time) (findings []Finding, events int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("detection rule panicked")
			findings = nil
			err = &panicError{value: r}
		}
	}()

	var since time.Time
	if w := rule.Window(); w > 0 {
		since = now.Add(-w)
	}
	snapshot, err := e.events.EventsBetween(ctx, since, now, rule.Filter()...)
	if err != nil {
		return nil, 0, fmt.Errorf("read events: %w", err)
	}

	in := &Input{
		Now:       now,
		Events:    snapshot,
		Directory: e.directory,
		Location:  e.location,
	}
	findings, err = rule.Evaluate(ctx, in)
	return findings, len(snapshot), err
}

func locationOf(in *Input) *time.Location {
	if in.Location == nil {
		return time.UTC
	}
	return in.Location
}
