// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("rule", "rapid_logins").Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"rule":"rapid_logins"`) {
		t.Errorf("expected structured field, got: %s", output)
	}
	if !strings.Contains(output, `"service":"insiderwatch"`) {
		t.Errorf("expected service field, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	if ValidLevel("bogus") {
		t.Error("bogus should not be a valid level")
	}
	if !ValidLevel("warn") {
		t.Error("warn should be a valid level")
	}
}

func TestCtxAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithRule(ctx, "otp_bruteforce")
	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"abc12345"`) {
		t.Errorf("missing correlation id: %s", out)
	}
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("missing request id: %s", out)
	}
	if !strings.Contains(out, `"rule":"otp_bruteforce"`) {
		t.Errorf("missing rule: %s", out)
	}
}

func TestCtxWithoutIDs(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	Ctx(context.Background()).Info().Msg("bare")
	if strings.Contains(buf.String(), "correlation_id") || strings.Contains(buf.String(), `"rule"`) {
		t.Errorf("unexpected fields: %s", buf.String())
	}
}

func TestGenerateIDs(t *testing.T) {
	if got := len(GenerateCorrelationID()); got != 8 {
		t.Errorf("correlation id length = %d, want 8", got)
	}
	if GenerateRequestID() == GenerateRequestID() {
		t.Error("request ids must be unique")
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	logger := NewSlogLogger().With("service_name", "detection-cycle").WithGroup("job")
	ctx := ContextWithCorrelationID(context.Background(), "cycle001")
	logger.WarnContext(ctx, "service restarted", "attempt", 2)

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"component":"supervisor"`, `"service_name":"detection-cycle"`,
		`"job.attempt":2`, `"correlation_id":"cycle001"`, "service restarted"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillAdapterWithLogger(NewTestLogger(&buf))

	adapter.With(watermill.LogFields{"topic": "alerts"}).
		Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 1})

	out := buf.String()
	for _, want := range []string{`"topic":"alerts"`, `"attempt":1`, `"error":"boom"`, "publish failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
