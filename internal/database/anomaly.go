// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// RecordScores writes every score and every alert draft in one transaction.
// Either all rows become visible or none do. It returns only the alerts that
// were newly created; drafts matching an existing dedup key are skipped.
func (db *DB) RecordScores(ctx context.Context, scores []models.AnomalyScore, drafts []models.AlertDraft) ([]models.Alert, error) {
	var created []models.Alert

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := db.now().UTC()
		for i := range scores {
			s := &scores[i]
			if s.CreatedAt.IsZero() {
				s.CreatedAt = now
			}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO anomaly_scores (subject_id, score, is_anomaly, reason, window_start, window_end, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				RETURNING id`,
				s.SubjectID, s.Score, s.IsAnomaly, s.Reason,
				s.WindowStart.UTC(), s.WindowEnd.UTC(), s.CreatedAt.UTC(),
			).Scan(&s.ID)
			if err != nil {
				return fmt.Errorf("failed to insert anomaly score for %s: %w", s.SubjectID, err)
			}
		}

		for i := range drafts {
			alert, isNew, err := db.createAlertTx(ctx, tx, &drafts[i])
			if err != nil {
				return err
			}
			if isNew {
				created = append(created, *alert)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListScores returns the most recent scores for subjectID, newest first.
// An empty subjectID lists every subject.
func (db *DB) ListScores(ctx context.Context, subjectID string, limit int) ([]models.AnomalyScore, error) {
	query := `SELECT id, subject_id, score, is_anomaly, reason, window_start, window_end, created_at FROM anomaly_scores`
	var args []interface{}
	if subjectID != "" {
		query += " WHERE subject_id = ?"
		args = append(args, subjectID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomaly scores: %w", err)
	}
	defer rows.Close()

	var scores []models.AnomalyScore
	for rows.Next() {
		var s models.AnomalyScore
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.Score, &s.IsAnomaly, &s.Reason,
			&s.WindowStart, &s.WindowEnd, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly score: %w", err)
		}
		s.WindowStart = s.WindowStart.UTC()
		s.WindowEnd = s.WindowEnd.UTC()
		s.CreatedAt = s.CreatedAt.UTC()
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate anomaly scores: %w", err)
	}
	return scores, nil
}
