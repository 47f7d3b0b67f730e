// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package access

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/models"
	"github.com/tomtom215/insiderwatch/internal/validation"
)

// grantPayload is the wire form of a grant. Level stays a string until it has
// passed validation so a bad level is reported as a field error.
type grantPayload struct {
	Kind       string `json:"kind" validate:"required,oneof=user role group"`
	Principal  string `json:"principal" validate:"required,max=128"`
	ResourceID string `json:"resource_id" validate:"required,max=128"`
	Level      string `json:"level" validate:"required,accesslevel"`
}

// ParseGrant decodes and validates a grant payload. Every failure is an error
// matching models.ErrValidation.
func ParseGrant(payload []byte) (*models.Grant, error) {
	var p grantPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, models.NewValidationError("body", "malformed grant payload: %v", err)
	}
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	p.Principal = strings.TrimSpace(p.Principal)
	p.ResourceID = strings.TrimSpace(p.ResourceID)

	if verr := validation.ValidateStruct(&p); verr != nil {
		return nil, verr
	}

	level, err := models.ParseAccessLevel(p.Level)
	if err != nil {
		return nil, err
	}
	return &models.Grant{
		Kind:       models.GrantKind(p.Kind),
		Principal:  p.Principal,
		ResourceID: p.ResourceID,
		Level:      level,
	}, nil
}
