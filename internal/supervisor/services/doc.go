// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package services adapts components with their own lifecycle to suture.Service.
//
// HTTPServerService translates ListenAndServe/Shutdown into Serve(ctx).
// WebSocketHubService delegates to the hub's RunWithContext. Scheduled jobs
// need no wrapper; scheduler.Job implements suture.Service itself.
package services
