// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package api exposes Insiderwatch over HTTP using the chi router.

Routes:

	GET    /health                          liveness and database ping
	GET    /metrics                         Prometheus scrape endpoint
	POST   /api/v1/events                   append an audit event
	GET    /api/v1/alerts                   list alerts (?severity=, ?show_cleared=, ?limit=)
	GET    /api/v1/alerts/{id}              fetch one alert
	PATCH  /api/v1/alerts/{id}/clear        clear an alert
	GET    /api/v1/access/resolve           effective level (?subject=, ?resource=)
	POST   /api/v1/access/authorize         {subject, resource, action} -> {allowed}
	PUT    /api/v1/subjects/{id}            upsert a directory subject
	PUT    /api/v1/resources/{id}           upsert a resource
	GET    /api/v1/grants                   list grants on a resource (?resource=)
	PUT    /api/v1/grants                   create or replace a grant
	DELETE /api/v1/grants                   remove a grant (?kind=, ?principal=, ?resource=)
	GET    /api/v1/ws                       alert push websocket

Every JSON response uses the models.APIResponse envelope. Errors map to
status codes in one place (writeError): validation 400, not found 404,
permission denied 403, anything else 500.

Authentication is expected in front of this service; the API trusts the
subject ids it is given.
*/
package api
