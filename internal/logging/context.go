// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	requestIDKey
	ruleKey
)

// ctxFields lists the context values Ctx copies onto the logger, in order.
var ctxFields = []struct {
	key  contextKey
	name string
}{
	{correlationIDKey, "correlation_id"},
	{requestIDKey, "request_id"},
	{ruleKey, "rule"},
}

// GenerateCorrelationID returns a short ID tying together one detection cycle.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUID for an HTTP request.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID returns a copy of ctx carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns a copy of ctx with a fresh correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// ContextWithRequestID returns a copy of ctx carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// ContextWithRule tags ctx with the detection rule being evaluated, so alert
// and store logs below it name the rule.
func ContextWithRule(ctx context.Context, rule string) context.Context {
	return context.WithValue(ctx, ruleKey, rule)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Ctx returns the global logger with the ids carried by ctx.
//
//	logging.Ctx(ctx).Info().Msg("Alert created")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	for _, f := range ctxFields {
		if v := stringValue(ctx, f.key); v != "" {
			logCtx = logCtx.Str(f.name, v)
		}
	}
	logger := logCtx.Logger()
	return &logger
}
