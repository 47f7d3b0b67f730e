// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/access"
	"github.com/tomtom215/insiderwatch/internal/alerts"
	"github.com/tomtom215/insiderwatch/internal/anomaly"
	"github.com/tomtom215/insiderwatch/internal/api"
	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/database"
	"github.com/tomtom215/insiderwatch/internal/detection"
	"github.com/tomtom215/insiderwatch/internal/eventprocessor"
	"github.com/tomtom215/insiderwatch/internal/guard"
	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/scheduler"
	"github.com/tomtom215/insiderwatch/internal/supervisor"
	"github.com/tomtom215/insiderwatch/internal/supervisor/services"
	ws "github.com/tomtom215/insiderwatch/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	once := flag.Bool("once", false, "run one detection cycle and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Registered first so it runs after every other deferred cleanup.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Bool("detection_enabled", cfg.Detection.Enabled).
		Bool("anomaly_enabled", cfg.Anomaly.Enabled).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := ws.NewHub()
	manager := alerts.NewManager(db)
	manager.RegisterPublisher(alerts.NewBroadcastPublisher(wsHub))

	natsPublisher := initNATS(&cfg.NATS, manager)
	if natsPublisher != nil {
		defer func() {
			if err := natsPublisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing NATS publisher")
			}
		}()
	}

	policy, err := access.NewPolicy(cfg.Access.ManagerMinTier)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load access policy")
	}
	accessEngine := access.NewEngine(db, policy)

	rules, err := initDetection(&cfg.Detection, db, manager)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize detection engine")
	}
	scorer := initAnomaly(ctx, &cfg.Anomaly, db, manager)

	// A nil *anomaly.Scorer stored in the interface would not compare equal to nil.
	var scoreRunner scheduler.ScoreRunner
	if scorer != nil {
		scoreRunner = scorer
	}
	cycle := scheduler.DetectionCycle(rules, scoreRunner)

	if *once {
		exitCode = runOnce(ctx, cfg, rules, scorer)
		return
	}

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// === DETECTION LAYER ===
	if cfg.Detection.Enabled {
		job := &scheduler.Job{
			Name:     "detection-cycle",
			Interval: cfg.Detection.Interval,
			Timeout:  cfg.Detection.Timeout,
			Run:      cycle,
		}
		if cfg.Bootstrap.Enabled {
			g, closeGuard, err := guard.New(&cfg.Bootstrap)
			if err != nil {
				logging.Warn().Err(err).Msg("Bootstrap guard unavailable, startup detection run will not be gated")
			} else {
				defer func() {
					if err := closeGuard(); err != nil {
						logging.Error().Err(err).Msg("Error closing bootstrap guard")
					}
				}()
				job.Bootstrap = &scheduler.Bootstrap{Guard: g, Key: cfg.Bootstrap.Key, TTL: cfg.Bootstrap.TTL}
				logging.Info().Str("backend", cfg.Bootstrap.Backend).Dur("ttl", cfg.Bootstrap.TTL).Msg("Bootstrap guard enabled")
			}
		}
		tree.AddDetectionService(job)
		logging.Info().Dur("interval", job.Interval).Msg("Detection cycle added to supervisor tree")
	} else {
		logging.Info().Msg("Scheduled detection disabled (DETECTION_ENABLED=false)")
	}

	// === MESSAGING LAYER ===
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))

	// === API LAYER ===
	handler := api.NewHandler(api.Deps{
		Events:    db,
		Alerts:    manager,
		Access:    accessEngine,
		Directory: db,
		Health:    db,
		Hub:       wsHub,
		WSOrigins: cfg.Security.CORSOrigins,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, api.RouterConfigFrom(&cfg.Security)),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// initNATS registers a NATS publisher with the alert manager when enabled.
// A connection failure is logged and alerts continue over the websocket.
func initNATS(cfg *config.NATSConfig, manager *alerts.Manager) *eventprocessor.Publisher {
	if !cfg.Enabled {
		logging.Info().Msg("NATS alert publishing disabled (NATS_ENABLED=false)")
		return nil
	}
	pub, err := eventprocessor.New(cfg, logging.NewWatermillAdapter("nats"))
	if err != nil {
		logging.Warn().Err(err).Str("url", cfg.URL).Msg("Failed to create NATS publisher, alerts will not be forwarded")
		return nil
	}
	manager.RegisterPublisher(alerts.NewWatermillPublisher("nats", cfg.Subject, pub))
	logging.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Bool("jetstream", cfg.JetStream).Msg("NATS alert publisher registered")
	return pub
}

// initDetection builds the rule engine with the six default rules.
func initDetection(cfg *config.DetectionConfig, db *database.DB, sink detection.AlertSink) (*detection.Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	engine := detection.NewEngine(db, db, sink, detection.WithLocation(loc))
	for _, rule := range detection.DefaultRules(cfg) {
		if err := engine.RegisterRule(rule); err != nil {
			return nil, err
		}
	}
	logging.Info().Int("rules", len(engine.Rules())).Str("timezone", loc.String()).Msg("Detection engine initialized")
	return engine, nil
}

// initAnomaly builds the scorer. It returns nil when scoring is disabled or
// the model source cannot be configured.
func initAnomaly(ctx context.Context, cfg *config.AnomalyConfig, db *database.DB, announcer anomaly.Announcer) *anomaly.Scorer {
	if !cfg.Enabled {
		logging.Info().Msg("Anomaly scoring disabled (ANOMALY_ENABLED=false)")
		return nil
	}
	source, err := anomaly.NewSource(ctx, cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to configure model source, anomaly scoring disabled")
		return nil
	}
	logging.Info().Dur("window", cfg.Window).Bool("s3", cfg.S3Bucket != "").Msg("Anomaly scorer initialized")
	return anomaly.NewScorer(db, source, announcer,
		anomaly.WithWindow(cfg.Window),
		anomaly.WithThreshold(cfg.ThresholdPtr()))
}

// runOnce runs a single cycle, prints both reports as JSON and returns the
// process exit code.
func runOnce(ctx context.Context, cfg *config.Config, rules *detection.Engine, scorer *anomaly.Scorer) int {
	if cfg.Detection.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Detection.Timeout)
		defer cancel()
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)

	out := map[string]interface{}{}
	exitCode := 0

	report, err := rules.Run(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Detection run failed")
		exitCode = 1
	}
	out["detection"] = report

	if scorer != nil {
		scores, err := scorer.Run(ctx)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Anomaly scoring failed")
			exitCode = 1
		}
		out["anomaly"] = scores
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logging.Error().Err(err).Msg("Failed to write report")
		exitCode = 1
	}
	return exitCode
}
