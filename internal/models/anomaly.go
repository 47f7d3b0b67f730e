// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package models

import "time"

// Derived feature names added alongside the per-action counts.
const (
	FeatureUniqueResources = "unique_resources"
	FeatureTotalActions    = "total_actions"
)

// FeatureVector aggregates one subject's events over a window.
// Counts holds one entry per observed action plus the derived features.
type FeatureVector struct {
	SubjectID string
	Counts    map[string]float64
}

// AnomalyScore is the immutable result of scoring one subject in one run.
// Higher scores are more anomalous.
type AnomalyScore struct {
	ID          int64     `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Score       float64   `json:"score"`
	IsAnomaly   bool      `json:"is_anomaly"`
	Reason      string    `json:"reason"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	CreatedAt   time.Time `json:"created_at"`
}
