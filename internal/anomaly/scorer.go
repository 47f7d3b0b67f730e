// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/models"
)

const (
	// DefaultWindow is the trailing window scored per run.
	DefaultWindow = 15 * time.Minute

	// ReasonIsolationForest tags scores produced by the forest.
	ReasonIsolationForest = "isolation_forest_window"

	// highSeverityScore is the score above which an anomaly is high severity.
	highSeverityScore = 1.0
)

// Store reads the window and persists scores with their alerts atomically.
type Store interface {
	EventsBetween(ctx context.Context, since, until time.Time, matches ...models.ActionMatch) ([]models.AuditEvent, error)
	RecordScores(ctx context.Context, scores []models.AnomalyScore, drafts []models.AlertDraft) ([]models.Alert, error)
}

// Announcer publishes newly created alerts.
type Announcer interface {
	Announce(ctx context.Context, alerts ...models.Alert)
}

// ScoreReport summarizes one scoring run.
type ScoreReport struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Subjects    int       `json:"subjects"`
	Anomalies   int       `json:"anomalies"`
	Created     int       `json:"created"`
	Skipped     bool      `json:"skipped"`
}

// Scorer scores every active subject in the trailing window.
type Scorer struct {
	store     Store
	source    ModelSource
	announcer Announcer
	window    time.Duration
	threshold *float64
	now       func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWindow sets the trailing window.
func WithWindow(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithThreshold flags scores at or above t instead of using the model's decision.
// Nil keeps the model's decision.
func WithThreshold(t *float64) Option {
	return func(s *Scorer) {
		if t != nil {
			v := *t
			s.threshold = &v
		}
	}
}

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScorer creates a scorer. announcer may be nil.
func NewScorer(store Store, source ModelSource, announcer Announcer, opts ...Option) *Scorer {
	s := &Scorer{
		store:     store,
		source:    source,
		announcer: announcer,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the trailing window.
func (s *Scorer) Window() time.Duration { return s.window }

// Run scores the trailing window once. A missing model is logged and the run
// is skipped without error so the next cycle can retry.
func (s *Scorer) Run(ctx context.Context) (*ScoreReport, error) {
	end := s.now()
	start := end.Add(-s.window)
	report := &ScoreReport{WindowStart: start, WindowEnd: end}

	model, err := s.source.Load(ctx)
	if err != nil {
		if errors.Is(err, models.ErrModelUnavailable) {
			metrics.AnomalyModelUnavailable.Inc()
			logging.Ctx(ctx).Warn().Err(err).Msg("anomaly model unavailable, skipping scoring run")
			report.Skipped = true
			return report, nil
		}
		return nil, fmt.Errorf("load anomaly model: %w", err)
	}

	events, err := s.store.EventsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("read scoring window: %w", err)
	}
	vectors := ExtractFeatures(events)
	report.Subjects = len(vectors)
	if len(vectors) == 0 {
		return report, nil
	}

	minutes := int(s.window.Minutes())
	scores := make([]models.AnomalyScore, 0, len(vectors))
	var drafts []models.AlertDraft
	for i := range vectors {
		fv := &vectors[i]
		score := model.Score(model.Reindex(fv))
		flagged := s.flag(score)

		scores = append(scores, models.AnomalyScore{
			SubjectID:   fv.SubjectID,
			Score:       score,
			IsAnomaly:   flagged,
			Reason:      ReasonIsolationForest,
			WindowStart: start,
			WindowEnd:   end,
		})
		if !flagged {
			continue
		}
		drafts = append(drafts, models.AlertDraft{
			SubjectID:   fv.SubjectID,
			Action:      models.ActionMLAnomaly,
			WindowStart: start,
			Description: fmt.Sprintf("ML anomaly score %.4f in last %dm", score, minutes),
			Severity:    Severity(score),
		})
	}
	report.Anomalies = len(drafts)

	created, err := s.store.RecordScores(ctx, scores, drafts)
	if err != nil {
		return nil, fmt.Errorf("record anomaly scores: %w", err)
	}
	report.Created = len(created)

	metrics.AnomalyScoresRecorded.Add(float64(len(scores)))
	metrics.AnomaliesFlagged.Add(float64(len(drafts)))
	for i := range created {
		metrics.RecordAlert(created[i].Action, string(created[i].Severity), true)
	}
	if s.announcer != nil && len(created) > 0 {
		s.announcer.Announce(ctx, created...)
	}

	logging.Ctx(ctx).Info().
		Int("subjects", report.Subjects).
		Int("anomalies", report.Anomalies).
		Int("created", report.Created).
		Msg("anomaly scoring run complete")
	return report, nil
}

func (s *Scorer) flag(score float64) bool {
	if s.threshold != nil {
		return score >= *s.threshold
	}
	return score > 0
}

// Severity bands an anomaly score.
func Severity(score float64) models.Severity {
	if score > highSeverityScore {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}
