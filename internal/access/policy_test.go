// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package access

import (
	"errors"
	"testing"

	"github.com/tomtom215/insiderwatch/internal/models"
)

func TestPolicy_Required(t *testing.T) {
	policy, err := NewPolicy(3)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	tests := []struct {
		action string
		want   models.AccessLevel
	}{
		{"GET", models.AccessRead},
		{"head", models.AccessRead},
		{"OPTIONS", models.AccessRead},
		{"view", models.AccessRead},
		{"read", models.AccessRead},
		{"download", models.AccessDownload},
		{"upload", models.AccessUpload},
		{"POST", models.AccessWrite},
		{"put", models.AccessWrite},
		{"PATCH", models.AccessWrite},
		{"update", models.AccessWrite},
		{"write", models.AccessWrite},
		{"DELETE", models.AccessDelete},
		{"share", models.AccessFullControl},
		{" Admin ", models.AccessFullControl},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := policy.Required(tt.action)
			if err != nil {
				t.Fatalf("Required(%q) error = %v", tt.action, err)
			}
			if got != tt.want {
				t.Errorf("Required(%q) = %s, want %s", tt.action, got, tt.want)
			}
		})
	}

	if _, err := policy.Required("none"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Required(none) expected ErrValidation, got %v", err)
	}
}

func TestPolicy_Allows(t *testing.T) {
	policy, err := NewPolicy(3)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	tests := []struct {
		name     string
		decision Decision
		tier     int
		sameDept bool
		action   string
		want     bool
	}{
		{"explicit level meets requirement", Decision{models.AccessWrite, SourceUser}, 0, false, "upload", true},
		{"explicit level below requirement", Decision{models.AccessUpload, SourceRole}, 9, false, "write", false},
		{"tier does not lift grants outside department", Decision{models.AccessRead, SourceGroup}, 9, false, "delete", false},
		{"fallback read", Decision{models.AccessRead, SourceDepartment}, 0, true, "read", true},
		{"fallback write below tier", Decision{models.AccessRead, SourceDepartment}, 2, true, "write", false},
		{"fallback write at tier", Decision{models.AccessRead, SourceDepartment}, 3, true, "write", true},
		{"fallback delete above tier", Decision{models.AccessRead, SourceDepartment}, 5, true, "delete", true},
		{"fallback never full control", Decision{models.AccessRead, SourceDepartment}, 10, true, "share", false},
		{"explicit read keeps manager fallback", Decision{models.AccessRead, SourceUser}, 3, true, "write", true},
		{"explicit upload keeps manager fallback", Decision{models.AccessUpload, SourceGroup}, 3, true, "delete", true},
		{"none denies read", Decision{models.AccessNone, SourceNone}, 10, false, "read", false},
		{"full control allows everything", Decision{models.AccessFullControl, SourceOwner}, 0, false, "admin", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Allows(tt.decision, tt.tier, tt.sameDept, tt.action)
			if err != nil {
				t.Fatalf("Allows() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_ManagerTierConfigurable(t *testing.T) {
	policy, err := NewPolicy(5)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	fallback := Decision{models.AccessRead, SourceDepartment}

	if ok, _ := policy.Allows(fallback, 4, true, "write"); ok {
		t.Error("tier 4 should not write with minimum tier 5")
	}
	if ok, _ := policy.Allows(fallback, 5, true, "write"); !ok {
		t.Error("tier 5 should write with minimum tier 5")
	}
}

func TestPolicy_Actions(t *testing.T) {
	policy, err := NewPolicy(3)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	actions := policy.Actions()
	if len(actions) != 16 {
		t.Errorf("Actions() returned %d verbs, want 16: %v", len(actions), actions)
	}
	for i := 1; i < len(actions); i++ {
		if actions[i-1] >= actions[i] {
			t.Fatalf("Actions() not sorted: %v", actions)
		}
	}
}

func TestLoadEmbeddedPolicy_Malformed(t *testing.T) {
	policy, err := NewPolicy(3)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	tests := []string{
		"p, read",
		"p, read, superpower",
		"x, a, b",
	}
	for _, line := range tests {
		if err := loadEmbeddedPolicy(policy.enforcer, line); err == nil {
			t.Errorf("loadEmbeddedPolicy(%q) expected error", line)
		}
	}
}
