// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package models

import "strings"

// AccessLevel is a point in the permission lattice. The zero value is AccessNone.
//
// The order is total: none < read < download < upload < write < delete < full_control.
// AccessNone is strictly weaker than every explicit grant.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessDownload
	AccessUpload
	AccessWrite
	AccessDelete
	AccessFullControl
)

var accessLevelNames = [...]string{
	AccessNone:        "none",
	AccessRead:        "read",
	AccessDownload:    "download",
	AccessUpload:      "upload",
	AccessWrite:       "write",
	AccessDelete:      "delete",
	AccessFullControl: "full_control",
}

// AccessLevels returns every level in ascending order.
func AccessLevels() []AccessLevel {
	return []AccessLevel{
		AccessNone, AccessRead, AccessDownload, AccessUpload,
		AccessWrite, AccessDelete, AccessFullControl,
	}
}

func (l AccessLevel) String() string {
	if l.Valid() {
		return accessLevelNames[l]
	}
	return "invalid"
}

// Valid reports whether l is one of the defined levels.
func (l AccessLevel) Valid() bool {
	return l >= AccessNone && l <= AccessFullControl
}

// AtLeast reports whether l grants everything required grants.
func (l AccessLevel) AtLeast(required AccessLevel) bool {
	return l >= required
}

// ParseAccessLevel parses a level name. Matching is case-insensitive.
func ParseAccessLevel(s string) (AccessLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range accessLevelNames {
		if n == name {
			return AccessLevel(i), nil
		}
	}
	return AccessNone, NewValidationError("level", "unknown access level %q", s)
}

// MaxAccessLevel returns the highest of levels, or AccessNone when empty.
func MaxAccessLevel(levels ...AccessLevel) AccessLevel {
	highest := AccessNone
	for _, l := range levels {
		if l > highest {
			highest = l
		}
	}
	return highest
}

// MarshalText encodes the level by name.
func (l AccessLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, NewValidationError("level", "invalid access level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *AccessLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// GrantKind tags the principal a Grant is attached to.
type GrantKind string

const (
	GrantUser  GrantKind = "user"
	GrantRole  GrantKind = "role"
	GrantGroup GrantKind = "group"
)

// Grant is an explicit, stored permission. Principal is a subject ID, role name
// or group name depending on Kind. Ownership and department fallback are
// derived at resolution time and never stored.
type Grant struct {
	Kind       GrantKind   `json:"kind" validate:"required,oneof=user role group"`
	Principal  string      `json:"principal" validate:"required,max=128"`
	ResourceID string      `json:"resource_id" validate:"required,max=128"`
	Level      AccessLevel `json:"level"`
}
