// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. It reports field names by
// their json tag and registers the domain tags accesslevel and severity:
//
//	type grantRequest struct {
//	    Level string `json:"level" validate:"required,accesslevel"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    apiErr := err.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, err)
//	}
//
// A *RequestValidationError satisfies errors.Is(err, models.ErrValidation).
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/insiderwatch/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one field that failed validation.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the json name of the failing field.
func (e *FieldError) Field() string { return e.field }

// Tag returns the failing validation tag.
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "128" for max=128.
func (e *FieldError) Param() string { return e.param }

// Value returns the rejected value.
func (e *FieldError) Value() interface{} { return e.value }

func (e *FieldError) Error() string { return e.message }

// RequestValidationError collects every failing field of one struct.
type RequestValidationError struct {
	errors []FieldError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.errors))
	for i := range ve.errors {
		messages[i] = ve.errors[i].message
	}
	return strings.Join(messages, "; ")
}

// Unwrap lets errors.Is(err, models.ErrValidation) match.
func (ve *RequestValidationError) Unwrap() error {
	return models.ErrValidation
}

// ToModelError returns the first failure as a *models.ValidationError.
func (ve *RequestValidationError) ToModelError() *models.ValidationError {
	if len(ve.errors) == 0 {
		return &models.ValidationError{Message: "validation failed"}
	}
	return &models.ValidationError{Field: ve.errors[0].field, Message: ve.errors[0].message}
}

// ToAPIError converts the failures to the API error envelope.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	switch len(ve.errors) {
	case 0:
		return &models.APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	case 1:
		fe := ve.errors[0]
		return &models.APIError{
			Code:    "VALIDATION_ERROR",
			Message: fe.message,
			Details: map[string]interface{}{"field": fe.field, "tag": fe.tag},
		}
	}

	fields := make([]map[string]interface{}, len(ve.errors))
	messages := make([]string, len(ve.errors))
	for i, fe := range ve.errors {
		fields[i] = map[string]interface{}{"field": fe.field, "tag": fe.tag, "message": fe.message}
		messages[i] = fe.message
	}
	return &models.APIError{
		Code:    "VALIDATION_ERROR",
		Message: strings.Join(messages, "; "),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "koanf"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		//nolint:errcheck // registration only fails on an empty tag name
		validate.RegisterValidation("accesslevel", func(fl validator.FieldLevel) bool {
			_, err := models.ParseAccessLevel(fl.Field().String())
			return err == nil
		})
		//nolint:errcheck // registration only fails on an empty tag name
		validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			_, err := models.ParseSeverity(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidateStruct validates s. It returns nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = FieldError{
			field:   fieldErr.Field(),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"email":       "%s must be a valid email address",
	"ip":          "%s must be a valid IP address",
	"url":         "%s must be a valid URL",
	"hostname":    "%s must be a valid hostname",
	"accesslevel": "%s must be one of: none read download upload write delete full_control",
	"severity":    "%s must be one of: low medium high",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
