// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS audit_events_id_seq`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id BIGINT PRIMARY KEY DEFAULT nextval('audit_events_id_seq'),
		actor_id VARCHAR,
		action VARCHAR NOT NULL,
		resource_id VARCHAR,
		ts TIMESTAMP NOT NULL,
		ip VARCHAR,
		metadata VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts)`,

	`CREATE TABLE IF NOT EXISTS subjects (
		id VARCHAR PRIMARY KEY,
		email VARCHAR,
		is_superuser BOOLEAN NOT NULL DEFAULT false,
		department VARCHAR,
		role_name VARCHAR,
		role_tier INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS subject_groups (
		subject_id VARCHAR NOT NULL,
		group_name VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		id VARCHAR PRIMARY KEY,
		department VARCHAR,
		owner_id VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS resource_allowed_groups (
		resource_id VARCHAR NOT NULL,
		group_name VARCHAR NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS access_grants (
		kind VARCHAR NOT NULL,
		principal VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		level INTEGER NOT NULL,
		PRIMARY KEY (kind, principal, resource_id)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS alerts_id_seq`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGINT PRIMARY KEY DEFAULT nextval('alerts_id_seq'),
		subject_id VARCHAR NOT NULL,
		action VARCHAR NOT NULL,
		description VARCHAR NOT NULL,
		severity VARCHAR NOT NULL,
		ts TIMESTAMP NOT NULL,
		cleared BOOLEAN NOT NULL DEFAULT false,
		window_start TIMESTAMP NOT NULL,
		dedup_key VARCHAR NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_subject_action ON alerts(subject_id, action, ts)`,

	`CREATE SEQUENCE IF NOT EXISTS anomaly_scores_id_seq`,
	`CREATE TABLE IF NOT EXISTS anomaly_scores (
		id BIGINT PRIMARY KEY DEFAULT nextval('anomaly_scores_id_seq'),
		subject_id VARCHAR NOT NULL,
		score DOUBLE NOT NULL,
		is_anomaly BOOLEAN NOT NULL,
		reason VARCHAR NOT NULL,
		window_start TIMESTAMP NOT NULL,
		window_end TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// InitSchema creates every table, sequence and index that does not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
