// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package models

// Role is a named job function. Tier is the management level; higher is more senior.
type Role struct {
	Name string `json:"name" validate:"required,max=64"`
	Tier int    `json:"tier" validate:"gte=0,lte=100"`
}

// Subject is an actor whose behavior is audited and whose access is resolved.
type Subject struct {
	ID          string   `json:"id" validate:"required,max=128"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email"`
	IsSuperuser bool     `json:"is_superuser"`
	Department  *string  `json:"department,omitempty"`
	Role        *Role    `json:"role,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

// InGroup reports whether the subject belongs to any of groups.
func (s *Subject) InGroup(groups []string) bool {
	for _, want := range groups {
		for _, have := range s.Groups {
			if want == have {
				return true
			}
		}
	}
	return false
}

// RoleTier returns the role tier, or 0 without a role.
func (s *Subject) RoleTier() int {
	if s.Role == nil {
		return 0
	}
	return s.Role.Tier
}

// Resource is an object access decisions are made about.
// AllowedGroups is empty when the resource exposes no allowed-group set.
type Resource struct {
	ID            string   `json:"id" validate:"required,max=128"`
	Department    *string  `json:"department,omitempty"`
	OwnerID       *string  `json:"owner_id,omitempty"`
	AllowedGroups []string `json:"allowed_groups,omitempty"`
}

// SameDepartment reports whether both departments are set and equal.
func SameDepartment(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// DifferentDepartment reports whether both departments are set and differ.
func DifferentDepartment(a, b *string) bool {
	return a != nil && b != nil && *a != *b
}
