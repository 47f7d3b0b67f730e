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
	"time"

	"github.com/tomtom215/insiderwatch/internal/models"
)

const alertSelect = `
	SELECT a.id, a.subject_id, COALESCE(s.email, ''), a.action, a.ts, a.description,
		a.severity, a.cleared, a.window_start, a.dedup_key
	FROM alerts a
	LEFT JOIN subjects s ON s.id = a.subject_id`

// CreateAlertIfAbsent returns the alert for the draft's dedup key, or when the
// draft sets DedupSince, the newest alert for its subject and action raised at
// or after that time. Otherwise it creates one. created is false when an
// existing alert was returned.
func (db *DB) CreateAlertIfAbsent(ctx context.Context, draft *models.AlertDraft) (*models.Alert, bool, error) {
	var alert *models.Alert
	var created bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		alert, created, err = db.createAlertTx(ctx, tx, draft)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return alert, created, nil
}

// createAlertTx must run inside withTx.
func (db *DB) createAlertTx(ctx context.Context, tx *sql.Tx, draft *models.AlertDraft) (*models.Alert, bool, error) {
	if draft.SubjectID == "" || draft.Action == "" {
		return nil, false, models.NewValidationError("alert", "subject and action are required")
	}
	key := draft.DedupKey()

	existing, err := alertByDedupKey(ctx, tx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	if !draft.DedupSince.IsZero() {
		recent, err := recentAlert(ctx, tx, draft.SubjectID, draft.Action, draft.DedupSince)
		if err == nil {
			return recent, false, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, err
		}
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO alerts (subject_id, action, description, severity, ts, cleared, window_start, dedup_key)
		VALUES (?, ?, ?, ?, ?, false, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id`,
		draft.SubjectID, draft.Action, draft.Description, string(draft.Severity),
		db.now().UTC(), draft.WindowStart.UTC(), key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := alertByDedupKey(ctx, tx, key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert alert: %w", err)
	}

	alert, err := alertByID(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	return alert, true, nil
}

// GetAlert returns the alert with id, or an error wrapping ErrNotFound.
func (db *DB) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	return alertByID(ctx, db.conn, id)
}

// ClearAlert marks an alert cleared. Clearing a cleared alert is a no-op.
func (db *DB) ClearAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert *models.Alert
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		alert, err = alertByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if alert.Cleared {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE alerts SET cleared = true WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear alert %d: %w", id, err)
		}
		alert.Cleared = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns alerts matching f, newest first.
func (db *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	var conds []string
	var args []interface{}
	if f.Severity != nil {
		conds = append(conds, "a.severity = ?")
		args = append(args, string(*f.Severity))
	}
	if !f.IncludeCleared {
		conds = append(conds, "a.cleared = false")
	}

	query := alertSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.ts DESC, a.id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

func alertByID(ctx context.Context, q queryer, id int64) (*models.Alert, error) {
	a, err := scanAlert(q.QueryRowContext(ctx, alertSelect+" WHERE a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	return a, err
}

func alertByDedupKey(ctx context.Context, q queryer, key string) (*models.Alert, error) {
	a, err := scanAlert(q.QueryRowContext(ctx, alertSelect+" WHERE a.dedup_key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %q: %w", key, models.ErrNotFound)
	}
	return a, err
}

func recentAlert(ctx context.Context, q queryer, subjectID, action string, since time.Time) (*models.Alert, error) {
	a, err := scanAlert(q.QueryRowContext(ctx,
		alertSelect+" WHERE a.subject_id = ? AND a.action = ? AND a.ts >= ? ORDER BY a.ts DESC, a.id DESC LIMIT 1",
		subjectID, action, since.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert for %s/%s since %s: %w", subjectID, action, since.UTC().Format(time.RFC3339), models.ErrNotFound)
	}
	return a, err
}

// scanAlert returns sql.ErrNoRows unwrapped so callers can map it.
func scanAlert(scanner interface{ Scan(dest ...interface{}) error }) (*models.Alert, error) {
	var a models.Alert
	var severity string
	var ts, windowStart time.Time

	err := scanner.Scan(&a.ID, &a.SubjectID, &a.SubjectEmail, &a.Action, &ts, &a.Description,
		&severity, &a.Cleared, &windowStart, &a.DedupKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Severity = models.Severity(severity)
	a.Timestamp = ts.UTC()
	a.WindowStart = windowStart.UTC()
	return &a, nil
}
