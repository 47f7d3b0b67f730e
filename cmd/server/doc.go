// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package main is the entry point for the Insiderwatch server.

Insiderwatch records audit events, runs rule-based and isolation-forest
detection over them on a schedule, and serves access decisions for
subjects and resources.

# Application Architecture

Services run under a Suture v4 tree:

	RootSupervisor ("insiderwatch")
	├── DetectionSupervisor ("detection-layer")
	│   └── detection-cycle (rules, then anomaly scoring)
	├── MessagingSupervisor ("messaging-layer")
	│   └── WebSocket Hub (alert push)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, optional YAML file, environment
 2. Logging: zerolog with JSON or console output
 3. Database: DuckDB event, alert, score and directory tables
 4. Alert manager with WebSocket and optional NATS publishers
 5. Detection engine, anomaly scorer and bootstrap guard
 6. Access engine backed by the Casbin policy
 7. Supervisor tree and HTTP server

# Flags

	-once     run one detection cycle, print the result and exit
	-version  print the version and exit

# Configuration

Common environment variables:

	HTTP_HOST, HTTP_PORT            listener address (default 0.0.0.0:8080)
	DUCKDB_PATH                     database file (default /data/insiderwatch.duckdb)
	DETECTION_INTERVAL              cycle interval (default 5m)
	DETECTION_TIMEZONE              zone for unusual-hour checks (default UTC)
	ANOMALY_ENABLED                 enable isolation-forest scoring
	ANOMALY_MODEL_PATH              model artifact on disk
	ANOMALY_S3_BUCKET, ANOMALY_S3_KEY
	                                fetch the artifact from S3 instead
	BOOTSTRAP_BACKEND               memory, badger or redis
	NATS_ENABLED, NATS_URL          publish alerts to NATS

CONFIG_PATH points at a YAML file; config.yaml in the working directory is
used when present.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains within
HTTP_SHUTDOWN_TIMEOUT and the detection cycle is canceled at its next
context check.
*/
package main
