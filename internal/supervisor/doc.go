// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

/*
Package supervisor runs the long-lived Insiderwatch services under suture v4.

	insiderwatch
	├── detection-layer
	│   └── scheduler.Job "detection-cycle"
	├── messaging-layer
	│   └── WebSocketHubService
	└── api-layer
	    └── HTTPServerService

Crashed services restart with backoff. Layers count failures separately.
Supervisor events are logged through sutureslog into the zerolog logger via
logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDetectionService(job)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor stopped")
	}

	if report, _ := tree.UnstoppedServiceReport(); len(report) > 0 {
	    logging.Warn().Int("count", len(report)).Msg("services did not stop in time")
	}
*/
package supervisor
