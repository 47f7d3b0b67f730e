// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// EventAlertCreated is the envelope type of a new-alert announcement.
const EventAlertCreated = "alert.created"

// Channel is the broadcast channel alerts are announced on.
const Channel = "alerts"

// DefaultPublishTimeout bounds a single publisher call.
const DefaultPublishTimeout = 5 * time.Second

// Envelope is the announcement payload.
type Envelope struct {
	Type  string        `json:"type"`
	Alert *models.Alert `json:"alert"`
}

// Store persists alerts.
type Store interface {
	CreateAlertIfAbsent(ctx context.Context, draft *models.AlertDraft) (*models.Alert, bool, error)
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	ClearAlert(ctx context.Context, id int64) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
}

// Publisher delivers announcements to one transport.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
	Name() string
}

// Manager is the alert manager. It is safe for concurrent use.
type Manager struct {
	store          Store
	publishTimeout time.Duration

	mu         sync.RWMutex
	publishers []Publisher
}

// NewManager creates an alert manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:          store,
		publishTimeout: DefaultPublishTimeout,
	}
}

// SetPublishTimeout overrides DefaultPublishTimeout.
func (m *Manager) SetPublishTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishTimeout = d
}

// RegisterPublisher adds a publisher to the announcement fan-out.
func (m *Manager) RegisterPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishers = append(m.publishers, p)
	logging.Info().Str("publisher", p.Name()).Msg("registered alert publisher")
}

// CreateOrGet returns the alert for the draft's dedup key, creating and
// announcing it when absent. created is false when an existing alert was
// returned.
func (m *Manager) CreateOrGet(ctx context.Context, draft *models.AlertDraft) (*models.Alert, bool, error) {
	alert, created, err := m.store.CreateAlertIfAbsent(ctx, draft)
	if err != nil {
		return nil, false, err
	}

	metrics.RecordAlert(alert.Action, string(alert.Severity), created)
	if created {
		logging.Ctx(ctx).Info().
			Int64("alert_id", alert.ID).
			Str("subject", alert.SubjectID).
			Str("action", alert.Action).
			Str("severity", string(alert.Severity)).
			Msg("Alert created")
		m.Announce(ctx, *alert)
	}
	return alert, created, nil
}

// Get returns the alert with id.
func (m *Manager) Get(ctx context.Context, id int64) (*models.Alert, error) {
	return m.store.GetAlert(ctx, id)
}

// Clear marks an alert cleared. Clearing an already-cleared alert returns it
// unchanged.
func (m *Manager) Clear(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := m.store.ClearAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.AlertsCleared.Inc()
	return alert, nil
}

// List returns alerts matching filter, newest first.
func (m *Manager) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	return m.store.ListAlerts(ctx, filter)
}

// Announce publishes each alert to every registered publisher. Failures are
// logged and counted, never returned.
func (m *Manager) Announce(ctx context.Context, alerts ...models.Alert) {
	m.mu.RLock()
	publishers := make([]Publisher, len(m.publishers))
	copy(publishers, m.publishers)
	timeout := m.publishTimeout
	m.mu.RUnlock()

	if len(publishers) == 0 {
		return
	}

	for i := range alerts {
		env := &Envelope{Type: EventAlertCreated, Alert: &alerts[i]}
		for _, p := range publishers {
			m.publishOne(ctx, p, env, timeout)
		}
	}
}

func (m *Manager) publishOne(ctx context.Context, p Publisher, env *Envelope, timeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AlertPublishFailures.WithLabelValues(p.Name()).Inc()
			logging.Error().Interface("panic", r).Str("publisher", p.Name()).Msg("alert publisher panicked")
		}
	}()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := p.Publish(pubCtx, env); err != nil {
		metrics.AlertPublishFailures.WithLabelValues(p.Name()).Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("publisher", p.Name()).
			Int64("alert_id", env.Alert.ID).
			Msg("failed to publish alert")
	}
}
