// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/insiderwatch/internal/models"
)

func testDraft(subject, action string, start time.Time) *models.AlertDraft {
	return &models.AlertDraft{
		SubjectID:   subject,
		Action:      action,
		WindowStart: start,
		Description: "test alert",
		Severity:    models.SeverityHigh,
	}
}

func countAlerts(t *testing.T, db *DB, subjectID, action string) int {
	t.Helper()
	var n int
	err := db.Conn().QueryRowContext(context.Background(),
		`SELECT count(*) FROM alerts WHERE subject_id = ? AND action = ?`, subjectID, action).Scan(&n)
	if err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	return n
}

func TestCreateAlertIfAbsent(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertSubject(ctx, &models.Subject{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}

	start := clock.Now().Truncate(15 * time.Minute)
	first, created, err := db.CreateAlertIfAbsent(ctx, testDraft("u1", "otp_bruteforce", start))
	if err != nil {
		t.Fatalf("CreateAlertIfAbsent: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}
	if first.SubjectEmail != "u1@example.com" {
		t.Errorf("email = %q", first.SubjectEmail)
	}
	if first.Severity != models.SeverityHigh || first.Cleared {
		t.Errorf("alert = %+v", first)
	}

	clock.Advance(time.Minute)
	second, created, err := db.CreateAlertIfAbsent(ctx, testDraft("u1", "otp_bruteforce", start))
	if err != nil {
		t.Fatalf("second CreateAlertIfAbsent: %v", err)
	}
	if created {
		t.Error("second call must not create")
	}
	if second.ID != first.ID {
		t.Errorf("got id %d, want existing %d", second.ID, first.ID)
	}

	if _, created, _ := db.CreateAlertIfAbsent(ctx, testDraft("u1", "otp_bruteforce", start.Add(15*time.Minute))); !created {
		t.Error("a new window start must create a new alert")
	}

	if n := countAlerts(t, db, "u1", "otp_bruteforce"); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestCreateAlertIfAbsent_DedupSince(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()
	window := 15 * time.Minute

	draftAt := func(now time.Time) *models.AlertDraft {
		d := testDraft("u1", "otp_bruteforce", now.Add(-window))
		d.DedupSince = now.Add(-window)
		return d
	}

	first, created, err := db.CreateAlertIfAbsent(ctx, draftAt(clock.Now()))
	if err != nil || !created {
		t.Fatalf("first create = %v, %v", created, err)
	}

	// Same burst seen by a later run whose window no longer starts in the same place.
	clock.Advance(window - 5*time.Second)
	second, created, err := db.CreateAlertIfAbsent(ctx, draftAt(clock.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if created || second.ID != first.ID {
		t.Errorf("alert inside lookback: created=%v id=%d, want existing %d", created, second.ID, first.ID)
	}

	other := draftAt(clock.Now())
	other.Action = "rapid_logins"
	if _, created, _ := db.CreateAlertIfAbsent(ctx, other); !created {
		t.Error("another action must not be absorbed")
	}

	clock.Advance(10 * time.Second)
	if _, created, _ := db.CreateAlertIfAbsent(ctx, draftAt(clock.Now())); !created {
		t.Error("alert older than the lookback must not absorb a new burst")
	}
	if n := countAlerts(t, db, "u1", "otp_bruteforce"); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestCreateAlertIfAbsent_Concurrent(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()

	const workers = 16
	var createdCount atomic.Int32
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	start := clock.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := db.CreateAlertIfAbsent(ctx, testDraft("u1", "rapid_logins", start))
			if err != nil {
				errCh <- err
				return
			}
			if created {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent create: %v", err)
	}
	if got := createdCount.Load(); got != 1 {
		t.Errorf("created = %d, want exactly 1", got)
	}
	if n := countAlerts(t, db, "u1", "rapid_logins"); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestClearAlert(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()

	alert, _, err := db.CreateAlertIfAbsent(ctx, testDraft("u1", "suspicious_sequence", clock.Now()))
	if err != nil {
		t.Fatalf("CreateAlertIfAbsent: %v", err)
	}

	cleared, err := db.ClearAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("ClearAlert: %v", err)
	}
	if !cleared.Cleared {
		t.Error("alert not cleared")
	}

	again, err := db.ClearAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("second ClearAlert must not error: %v", err)
	}
	if !again.Cleared || again.ID != cleared.ID || again.Description != cleared.Description {
		t.Errorf("second clear changed state: %+v vs %+v", again, cleared)
	}

	if _, err := db.ClearAlert(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAlerts(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()

	mk := func(subject string, sev models.Severity) *models.Alert {
		d := testDraft(subject, "rule", clock.Now())
		d.Severity = sev
		a, _, err := db.CreateAlertIfAbsent(ctx, d)
		if err != nil {
			t.Fatalf("CreateAlertIfAbsent: %v", err)
		}
		clock.Advance(time.Minute)
		return a
	}
	a1 := mk("u1", models.SeverityHigh)
	mk("u2", models.SeverityMedium)
	a3 := mk("u3", models.SeverityHigh)
	if _, err := db.ClearAlert(ctx, a1.ID); err != nil {
		t.Fatalf("ClearAlert: %v", err)
	}

	open, err := db.ListAlerts(ctx, models.AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(open) != 2 || open[0].ID != a3.ID {
		t.Errorf("open alerts = %+v", open)
	}

	high := models.SeverityHigh
	all, err := db.ListAlerts(ctx, models.AlertFilter{Severity: &high, IncludeCleared: true})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(all) != 2 || all[0].ID != a3.ID || all[1].ID != a1.ID {
		t.Errorf("high alerts = %+v", all)
	}

	limited, err := db.ListAlerts(ctx, models.AlertFilter{IncludeCleared: true, Limit: 1})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d alerts", len(limited))
	}
}
