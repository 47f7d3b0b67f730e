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
	"sort"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// UpsertSubject inserts or replaces a subject and its group memberships.
func (db *DB) UpsertSubject(ctx context.Context, s *models.Subject) error {
	var roleName sql.NullString
	var roleTier sql.NullInt64
	if s.Role != nil {
		roleName = sql.NullString{String: s.Role.Name, Valid: true}
		roleTier = sql.NullInt64{Int64: int64(s.Role.Tier), Valid: true}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (id, email, is_superuser, department, role_name, role_tier)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				email = excluded.email,
				is_superuser = excluded.is_superuser,
				department = excluded.department,
				role_name = excluded.role_name,
				role_tier = excluded.role_tier`,
			s.ID, s.Email, s.IsSuperuser, nullString(s.Department), roleName, roleTier)
		if err != nil {
			return fmt.Errorf("failed to upsert subject %s: %w", s.ID, err)
		}
		return replaceMembership(ctx, tx, "subject_groups", "subject_id", s.ID, s.Groups)
	})
}

// GetSubject returns the subject with id, or an error wrapping ErrNotFound.
func (db *DB) GetSubject(ctx context.Context, id string) (*models.Subject, error) {
	var s models.Subject
	var email, department, roleName sql.NullString
	var roleTier sql.NullInt64

	err := db.conn.QueryRowContext(ctx, `
		SELECT id, email, is_superuser, department, role_name, role_tier
		FROM subjects WHERE id = ?`, id,
	).Scan(&s.ID, &email, &s.IsSuperuser, &department, &roleName, &roleTier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject %s: %w", id, err)
	}

	s.Email = email.String
	s.Department = stringPtr(department)
	if roleName.Valid {
		s.Role = &models.Role{Name: roleName.String, Tier: int(roleTier.Int64)}
	}

	s.Groups, err = db.membership(ctx, "subject_groups", "subject_id", id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertResource inserts or replaces a resource and its allowed groups.
func (db *DB) UpsertResource(ctx context.Context, r *models.Resource) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resources (id, department, owner_id)
			VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				department = excluded.department,
				owner_id = excluded.owner_id`,
			r.ID, nullString(r.Department), nullString(r.OwnerID))
		if err != nil {
			return fmt.Errorf("failed to upsert resource %s: %w", r.ID, err)
		}
		return replaceMembership(ctx, tx, "resource_allowed_groups", "resource_id", r.ID, r.AllowedGroups)
	})
}

// GetResource returns the resource with id, or an error wrapping ErrNotFound.
func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	var r models.Resource
	var department, ownerID sql.NullString

	err := db.conn.QueryRowContext(ctx, `
		SELECT id, department, owner_id FROM resources WHERE id = ?`, id,
	).Scan(&r.ID, &department, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %s: %w", id, err)
	}

	r.Department = stringPtr(department)
	r.OwnerID = stringPtr(ownerID)
	r.AllowedGroups, err = db.membership(ctx, "resource_allowed_groups", "resource_id", id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// replaceMembership rewrites the group rows owned by ownerID. table and
// column are package constants, never caller input.
func replaceMembership(ctx context.Context, tx *sql.Tx, table, column, ownerID string, groups []string) error {
	//nolint:gosec // table and column are fixed identifiers
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+column+" = ?", ownerID); err != nil {
		return fmt.Errorf("failed to clear %s for %s: %w", table, ownerID, err)
	}

	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if _, dup := seen[g]; dup || g == "" {
			continue
		}
		seen[g] = struct{}{}
		//nolint:gosec // table and column are fixed identifiers
		if _, err := tx.ExecContext(ctx, "INSERT INTO "+table+" ("+column+", group_name) VALUES (?, ?)", ownerID, g); err != nil {
			return fmt.Errorf("failed to insert %s row for %s: %w", table, ownerID, err)
		}
	}
	return nil
}

func (db *DB) membership(ctx context.Context, table, column, ownerID string) ([]string, error) {
	//nolint:gosec // table and column are fixed identifiers
	rows, err := db.conn.QueryContext(ctx, "SELECT group_name FROM "+table+" WHERE "+column+" = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	sort.Strings(groups)
	return groups, nil
}
