// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/insiderwatch/internal/models"
)

func TestSubjectRoundTrip(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	s := &models.Subject{
		ID:         "u1",
		Email:      "u1@example.com",
		Department: models.StringPtr("finance"),
		Role:       &models.Role{Name: "manager", Tier: 3},
		Groups:     []string{"auditors", "staff", "staff"},
	}
	if err := db.UpsertSubject(ctx, s); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}

	got, err := db.GetSubject(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if got.Email != "u1@example.com" || *got.Department != "finance" {
		t.Errorf("subject = %+v", got)
	}
	if got.Role == nil || got.Role.Name != "manager" || got.Role.Tier != 3 {
		t.Errorf("role = %+v", got.Role)
	}
	if len(got.Groups) != 2 || got.Groups[0] != "auditors" || got.Groups[1] != "staff" {
		t.Errorf("groups = %v", got.Groups)
	}

	s.Role = nil
	s.Department = nil
	s.Groups = []string{"contractors"}
	s.IsSuperuser = true
	if err := db.UpsertSubject(ctx, s); err != nil {
		t.Fatalf("second UpsertSubject: %v", err)
	}
	got, err = db.GetSubject(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if got.Role != nil || got.Department != nil || !got.IsSuperuser {
		t.Errorf("update not applied: %+v", got)
	}
	if len(got.Groups) != 1 || got.Groups[0] != "contractors" {
		t.Errorf("groups = %v", got.Groups)
	}
}

func TestResourceRoundTrip(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	r := &models.Resource{
		ID:            "doc-1",
		Department:    models.StringPtr("hr"),
		OwnerID:       models.StringPtr("u9"),
		AllowedGroups: []string{"hr-staff"},
	}
	if err := db.UpsertResource(ctx, r); err != nil {
		t.Fatalf("UpsertResource: %v", err)
	}
	got, err := db.GetResource(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if *got.Department != "hr" || *got.OwnerID != "u9" || len(got.AllowedGroups) != 1 {
		t.Errorf("resource = %+v", got)
	}

	bare := &models.Resource{ID: "doc-2"}
	if err := db.UpsertResource(ctx, bare); err != nil {
		t.Fatalf("UpsertResource: %v", err)
	}
	got, err = db.GetResource(ctx, "doc-2")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if got.Department != nil || got.OwnerID != nil || len(got.AllowedGroups) != 0 {
		t.Errorf("bare resource = %+v", got)
	}
}

func TestDirectory_NotFound(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetSubject(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetSubject: expected ErrNotFound, got %v", err)
	}
	if _, err := db.GetResource(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetResource: expected ErrNotFound, got %v", err)
	}
}
