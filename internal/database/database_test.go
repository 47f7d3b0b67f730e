// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/insiderwatch/internal/config"
)

// testDBSemaphore serializes DuckDB tests; concurrent CGO connections from
// many tests at once can stall under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	clock := newTestClock()
	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return db, clock
}

func TestNew_SchemaIsIdempotent(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	for _, table := range []string{"audit_events", "subjects", "resources", "access_grants", "alerts", "anomaly_scores"} {
		var n int
		if err := db.Conn().QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		}
	}
}
