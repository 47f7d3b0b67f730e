// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package access

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tomtom215/insiderwatch/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Policy maps actions to required levels and evaluates decisions with Casbin.
type Policy struct {
	enforcer       *casbin.SyncedEnforcer
	managerMinTier int
	required       map[string]models.AccessLevel
}

// NewPolicy builds the embedded policy. managerMinTier is the role tier at which
// department fallback permits actions above read.
func NewPolicy(managerMinTier int) (*Policy, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	p := &Policy{enforcer: enforcer, managerMinTier: managerMinTier}
	enforcer.AddFunction("levelAtLeast", p.levelAtLeast)
	enforcer.AddFunction("fallbackPermits", p.fallbackPermits)

	if err := loadEmbeddedPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	if err := p.buildActionTable(); err != nil {
		return nil, err
	}
	return p, nil
}

// loadEmbeddedPolicy parses the policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 3 {
			return fmt.Errorf("malformed policy line %q", line)
		}

		switch parts[0] {
		case "p":
			if _, err := models.ParseAccessLevel(parts[2]); err != nil {
				return fmt.Errorf("policy line %q: %w", line, err)
			}
			if _, err := enforcer.AddPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("unknown policy type %q", parts[0])
		}
	}
	return nil
}

func (p *Policy) buildActionTable() error {
	rules, err := p.enforcer.GetPolicy()
	if err != nil {
		return fmt.Errorf("failed to read policy: %w", err)
	}
	p.required = make(map[string]models.AccessLevel, len(rules))
	for _, rule := range rules {
		level, err := models.ParseAccessLevel(rule[1])
		if err != nil {
			return err
		}
		p.required[rule[0]] = level
	}

	aliases, err := p.enforcer.GetGroupingPolicy()
	if err != nil {
		return fmt.Errorf("failed to read grouping policy: %w", err)
	}
	for _, alias := range aliases {
		level, ok := p.required[alias[1]]
		if !ok {
			return fmt.Errorf("alias %q targets unknown action %q", alias[0], alias[1])
		}
		p.required[alias[0]] = level
	}
	return nil
}

// NormalizeAction canonicalizes an action verb for lookup.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Required returns the level an action requires. Unknown actions are a
// ValidationError.
func (p *Policy) Required(action string) (models.AccessLevel, error) {
	level, ok := p.required[NormalizeAction(action)]
	if !ok {
		return models.AccessNone, models.NewValidationError("action", "unknown action %q", action)
	}
	return level, nil
}

// Actions returns every known action verb, sorted.
func (p *Policy) Actions() []string {
	actions := make([]string, 0, len(p.required))
	for a := range p.required {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

// Request scopes passed to the enforcer.
const (
	scopeDepartment = "department"
	scopeOther      = "other"
)

// Allows reports whether decision permits action for a subject of the given
// tier. sameDepartment enables the manager fallback whatever the decision's
// source, so an explicit grant never removes it.
func (p *Policy) Allows(decision Decision, tier int, sameDepartment bool, action string) (bool, error) {
	act := NormalizeAction(action)
	if _, ok := p.required[act]; !ok {
		return false, models.NewValidationError("action", "unknown action %q", action)
	}
	scope := scopeOther
	if sameDepartment {
		scope = scopeDepartment
	}
	allowed, err := p.enforcer.Enforce(scope, tier, decision.Level.String(), act)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// levelAtLeast(granted, required) compares two level names.
func (p *Policy) levelAtLeast(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("levelAtLeast expects 2 arguments, got %d", len(args))
	}
	granted, err := levelArg(args[0])
	if err != nil {
		return false, err
	}
	required, err := levelArg(args[1])
	if err != nil {
		return false, err
	}
	return granted.AtLeast(required), nil
}

// fallbackPermits(scope, tier, required) lets managers act up to delete on
// resources of their own department.
func (p *Policy) fallbackPermits(args ...interface{}) (interface{}, error) {
	if len(args) != 3 {
		return false, fmt.Errorf("fallbackPermits expects 3 arguments, got %d", len(args))
	}
	if scope, _ := args[0].(string); scope != scopeDepartment {
		return false, nil
	}
	tier, err := intArg(args[1])
	if err != nil {
		return false, err
	}
	required, err := levelArg(args[2])
	if err != nil {
		return false, err
	}
	return tier >= p.managerMinTier && required <= models.AccessDelete, nil
}

func levelArg(v interface{}) (models.AccessLevel, error) {
	s, ok := v.(string)
	if !ok {
		return models.AccessNone, fmt.Errorf("expected level name, got %T", v)
	}
	return models.ParseAccessLevel(s)
}

func intArg(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
