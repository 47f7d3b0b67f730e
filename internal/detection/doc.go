// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package detection runs temporal rules over the audit event log and raises
alerts through the alert manager.

# Rules

Six rules ship by default:

  - otp_bruteforce: more than 5 otp_failed events in 15 minutes (high)
  - rapid_logins: more than 5 logins in 10 minutes (medium)
  - unusual_hour_login: a login between 00:00 and 06:00 local time (medium)
  - excessive_downloads: more than 5 "downloaded" actions in 5 minutes (high)
  - unauthorized_access: an access outside the subject's department or
    allowed groups (high)
  - suspicious_sequence: login, then delete, then logout within 10 minutes (high)

Thresholds, windows and the unusual-hour range are configurable per rule,
either from config or at runtime through Engine.ConfigureRule.

# Runs

Engine.Run fixes the current time once. Every enabled rule reads its own
snapshot of events through EventSource.EventsBetween, narrowed to the rule's
window and action filter, and returns findings without side effects. A rule
that errors or panics is logged and counted; the remaining rules still run.

Each finding becomes an AlertDraft whose action is the rule name. The draft's
window start keeps repeated runs from duplicating an alert:

  - counting rules use the earliest event in the window, truncated to the
    window size
  - unusual_hour_login and unauthorized_access use the local day of the event
  - suspicious_sequence uses the matched login, truncated to the window size
*/
package detection
