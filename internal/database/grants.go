// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// PutGrant creates or replaces the grant for (kind, principal, resource).
func (db *DB) PutGrant(ctx context.Context, g *models.Grant) error {
	if !g.Level.Valid() {
		return models.NewValidationError("level", "invalid access level %d", int(g.Level))
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_grants (kind, principal, resource_id, level)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (kind, principal, resource_id) DO UPDATE SET level = excluded.level`,
			string(g.Kind), g.Principal, g.ResourceID, int(g.Level))
		if err != nil {
			return fmt.Errorf("failed to put %s grant for %s on %s: %w", g.Kind, g.Principal, g.ResourceID, err)
		}
		return nil
	})
}

// DeleteGrant removes a grant. Deleting a missing grant returns ErrNotFound.
func (db *DB) DeleteGrant(ctx context.Context, kind models.GrantKind, principal, resourceID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT count(*) > 0 FROM access_grants
			WHERE kind = ? AND principal = ? AND resource_id = ?`,
			string(kind), principal, resourceID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to look up grant: %w", err)
		}
		if !exists {
			return fmt.Errorf("%s grant for %s on %s: %w", kind, principal, resourceID, models.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM access_grants WHERE kind = ? AND principal = ? AND resource_id = ?`,
			string(kind), principal, resourceID)
		if err != nil {
			return fmt.Errorf("failed to delete grant: %w", err)
		}
		return nil
	})
}

// UserGrant returns the direct grant for subjectID on resourceID, if any.
func (db *DB) UserGrant(ctx context.Context, subjectID, resourceID string) (models.AccessLevel, bool, error) {
	return db.singleGrant(ctx, models.GrantUser, subjectID, resourceID)
}

// RoleGrant returns the grant for role on resourceID, if any.
func (db *DB) RoleGrant(ctx context.Context, role, resourceID string) (models.AccessLevel, bool, error) {
	return db.singleGrant(ctx, models.GrantRole, role, resourceID)
}

// GroupGrants returns the grants held by any of groups on resourceID.
func (db *DB) GroupGrants(ctx context.Context, groups []string, resourceID string) ([]models.AccessLevel, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(groups)), ", ")
	args := make([]interface{}, 0, len(groups)+2)
	args = append(args, string(models.GrantGroup), resourceID)
	for _, g := range groups {
		args = append(args, g)
	}

	//nolint:gosec // placeholders are generated, values are bound
	rows, err := db.conn.QueryContext(ctx, `
		SELECT level FROM access_grants
		WHERE kind = ? AND resource_id = ? AND principal IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query group grants: %w", err)
	}
	defer rows.Close()

	var levels []models.AccessLevel
	for rows.Next() {
		var level int
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("failed to scan group grant: %w", err)
		}
		levels = append(levels, models.AccessLevel(level))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group grants: %w", err)
	}
	return levels, nil
}

// ListGrants returns every stored grant on resourceID.
func (db *DB) ListGrants(ctx context.Context, resourceID string) ([]models.Grant, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT kind, principal, resource_id, level FROM access_grants
		WHERE resource_id = ? ORDER BY kind, principal`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var g models.Grant
		var kind string
		var level int
		if err := rows.Scan(&kind, &g.Principal, &g.ResourceID, &level); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Kind = models.GrantKind(kind)
		g.Level = models.AccessLevel(level)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}
	return grants, nil
}

func (db *DB) singleGrant(ctx context.Context, kind models.GrantKind, principal, resourceID string) (models.AccessLevel, bool, error) {
	var level int
	err := db.conn.QueryRowContext(ctx, `
		SELECT level FROM access_grants
		WHERE kind = ? AND principal = ? AND resource_id = ?`,
		string(kind), principal, resourceID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AccessNone, false, nil
	}
	if err != nil {
		return models.AccessNone, false, fmt.Errorf("failed to query %s grant: %w", kind, err)
	}
	return models.AccessLevel(level), true, nil
}
