// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package logging provides centralized zerolog-based structured logging for Insiderwatch.
//
// # Overview
//
// The package provides:
//   - A global zerolog logger configured once at startup
//   - JSON output for production, console output for development
//   - Context-aware logging: request id, cycle correlation id and the
//     detection rule being evaluated are copied from the context
//   - An slog adapter so suture (via sutureslog) logs through zerolog
//   - A watermill LoggerAdapter so the NATS publisher logs through zerolog
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("rule", "rapid_logins").Msg("Rule evaluated")
//	logging.Error().Err(err).Msg("Detection run failed")
//	logging.Ctx(ctx).Warn().Msg("Model artifact missing")
//
// Every entry carries service=insiderwatch.
//
// Always terminate a chain with Msg or Send; an unterminated event is dropped.
//
// # Thread Safety
//
// The global logger is guarded by a sync.RWMutex. Init may be called again to
// reconfigure it.
package logging
