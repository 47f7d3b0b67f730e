// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package access resolves effective access levels and authorizes actions.
//
// Resolution order for a (subject, resource) pair:
//
//  1. superuser: full_control
//  2. resource owner: full_control
//  3. the maximum of the direct user grant, the grant on the subject's role and
//     every grant held by one of the subject's groups
//  4. department fallback: read, only when no explicit grant above none exists
//     and both departments are set and equal
//  5. otherwise none
//
// Authorization maps an action verb to a required level and evaluates the
// decision through a Casbin model embedded from model.conf and policy.csv. On a
// resource of the subject's own department, a role tier at or above the
// configured manager tier permits actions up to delete, never full_control,
// whatever level the explicit grants resolve to.
//
// Decisions are never cached; every call reads grants from the store.
package access
