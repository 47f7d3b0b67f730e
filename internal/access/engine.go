// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package access

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// Source names where a resolved level came from.
type Source string

const (
	SourceSuperuser  Source = "superuser"
	SourceOwner      Source = "owner"
	SourceUser       Source = "user"
	SourceRole       Source = "role"
	SourceGroup      Source = "group"
	SourceDepartment Source = "department"
	SourceNone       Source = "none"
)

// Decision is the effective level for a (subject, resource) pair.
type Decision struct {
	Level  models.AccessLevel `json:"level"`
	Source Source             `json:"source"`
}

// Store is the read side of the directory and grant store.
type Store interface {
	GetSubject(ctx context.Context, id string) (*models.Subject, error)
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	UserGrant(ctx context.Context, subjectID, resourceID string) (models.AccessLevel, bool, error)
	RoleGrant(ctx context.Context, role, resourceID string) (models.AccessLevel, bool, error)
	GroupGrants(ctx context.Context, groups []string, resourceID string) ([]models.AccessLevel, error)
}

// Engine resolves access levels and authorizes actions. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	store  Store
	policy *Policy
}

// NewEngine creates an access decision engine.
func NewEngine(store Store, policy *Policy) *Engine {
	return &Engine{store: store, policy: policy}
}

// Policy returns the action policy.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Resolve returns the effective access level of subjectID on resourceID.
func (e *Engine) Resolve(ctx context.Context, subjectID, resourceID string) (Decision, error) {
	subject, resource, err := e.load(ctx, subjectID, resourceID)
	if err != nil {
		return Decision{}, err
	}
	return e.resolve(ctx, subject, resource)
}

// Authorize reports whether subjectID may perform action on resourceID.
func (e *Engine) Authorize(ctx context.Context, subjectID, resourceID, action string) (bool, error) {
	start := time.Now()

	if _, err := e.policy.Required(action); err != nil {
		return false, err
	}
	subject, resource, err := e.load(ctx, subjectID, resourceID)
	if err != nil {
		return false, err
	}
	decision, err := e.resolve(ctx, subject, resource)
	if err != nil {
		return false, err
	}
	sameDepartment := models.SameDepartment(subject.Department, resource.Department)
	allowed, err := e.policy.Allows(decision, subject.RoleTier(), sameDepartment, action)
	if err != nil {
		return false, err
	}

	metrics.RecordAuthzDecision(allowed, string(decision.Source), time.Since(start))
	logging.Ctx(ctx).Debug().
		Str("subject", subjectID).
		Str("resource", resourceID).
		Str("action", NormalizeAction(action)).
		Str("level", decision.Level.String()).
		Str("source", string(decision.Source)).
		Bool("allowed", allowed).
		Msg("Authorization decision")

	return allowed, nil
}

// Require is Authorize returning an error wrapping models.ErrPermissionDenied
// on denial.
func (e *Engine) Require(ctx context.Context, subjectID, resourceID, action string) error {
	allowed, err := e.Authorize(ctx, subjectID, resourceID, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: subject %s may not %s resource %s",
			models.ErrPermissionDenied, subjectID, NormalizeAction(action), resourceID)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, subjectID, resourceID string) (*models.Subject, *models.Resource, error) {
	subject, err := e.store.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}
	resource, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	return subject, resource, nil
}

func (e *Engine) resolve(ctx context.Context, subject *models.Subject, resource *models.Resource) (Decision, error) {
	if subject.IsSuperuser {
		return Decision{Level: models.AccessFullControl, Source: SourceSuperuser}, nil
	}
	if resource.OwnerID != nil && *resource.OwnerID == subject.ID {
		return Decision{Level: models.AccessFullControl, Source: SourceOwner}, nil
	}

	// Ties keep the earlier source: user, then role, then group.
	best := Decision{Level: models.AccessNone, Source: SourceNone}
	consider := func(level models.AccessLevel, source Source) {
		if level > best.Level {
			best = Decision{Level: level, Source: source}
		}
	}

	level, ok, err := e.store.UserGrant(ctx, subject.ID, resource.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read user grant: %w", err)
	}
	if ok {
		consider(level, SourceUser)
	}

	if subject.Role != nil {
		level, ok, err := e.store.RoleGrant(ctx, subject.Role.Name, resource.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to read role grant: %w", err)
		}
		if ok {
			consider(level, SourceRole)
		}
	}

	if len(subject.Groups) > 0 {
		levels, err := e.store.GroupGrants(ctx, subject.Groups, resource.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to read group grants: %w", err)
		}
		if len(levels) > 0 {
			consider(models.MaxAccessLevel(levels...), SourceGroup)
		}
	}

	if best.Level == models.AccessNone && models.SameDepartment(subject.Department, resource.Department) {
		return Decision{Level: models.AccessRead, Source: SourceDepartment}, nil
	}
	return best, nil
}
