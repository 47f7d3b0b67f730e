// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// AppendEvent stores a new audit event stamped with the store clock.
func (db *DB) AppendEvent(ctx context.Context, in *models.EventInput) (*models.AuditEvent, error) {
	if strings.TrimSpace(in.Action) == "" {
		return nil, models.NewValidationError("action", "action is required")
	}

	var metadata sql.NullString
	if len(in.Metadata) > 0 {
		data, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, models.NewValidationError("metadata", "metadata is not serializable: %v", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	event := &models.AuditEvent{
		ActorID:    in.ActorID,
		Action:     in.Action,
		ResourceID: in.ResourceID,
		IP:         in.IP,
		Metadata:   in.Metadata,
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	event.Timestamp = db.now().UTC()
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO audit_events (actor_id, action, resource_id, ts, ip, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		nullString(in.ActorID), in.Action, nullString(in.ResourceID), event.Timestamp, in.IP, metadata,
	).Scan(&event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit event: %w", err)
	}
	return event, nil
}

// EventsSince returns events at or after since, ascending by (timestamp, id).
// A zero since scans the whole store.
func (db *DB) EventsSince(ctx context.Context, since time.Time, matches ...models.ActionMatch) ([]models.AuditEvent, error) {
	return db.EventsBetween(ctx, since, time.Time{}, matches...)
}

// EventsBetween returns events in [since, until], ascending by (timestamp, id).
// Zero bounds are open. When matches are given an event must satisfy at least one.
func (db *DB) EventsBetween(ctx context.Context, since, until time.Time, matches ...models.ActionMatch) ([]models.AuditEvent, error) {
	var conds []string
	var args []interface{}

	if !since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, since.UTC())
	}
	if !until.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, until.UTC())
	}
	if len(matches) > 0 {
		ors := make([]string, 0, len(matches))
		for _, m := range matches {
			if m.Exact != "" {
				ors = append(ors, "action = ?")
				args = append(args, m.Exact)
			} else {
				ors = append(ors, "contains(lower(action), ?)")
				args = append(args, strings.ToLower(m.Contains))
			}
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	query := `SELECT id, actor_id, action, resource_id, ts, ip, metadata FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts ASC, id ASC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(scanner interface{ Scan(dest ...interface{}) error }) (*models.AuditEvent, error) {
	var e models.AuditEvent
	var actorID, resourceID, ip, metadata sql.NullString

	if err := scanner.Scan(&e.ID, &actorID, &e.Action, &resourceID, &e.Timestamp, &ip, &metadata); err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	e.ActorID = stringPtr(actorID)
	e.ResourceID = stringPtr(resourceID)
	e.IP = ip.String
	e.Timestamp = e.Timestamp.UTC()
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for event %d: %w", e.ID, err)
		}
	}
	return &e, nil
}
