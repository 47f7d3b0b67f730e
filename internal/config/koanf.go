// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/insiderwatch/config.yaml",
	"/etc/insiderwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultBootstrapKey is the guard key for the startup detection run.
const DefaultBootstrapKey = "insiderwatch:detections_bootstrap_ran"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "/data/insiderwatch.duckdb",
			MaxMemory: "1GB",
		},
		Detection: DetectionConfig{
			Enabled:          true,
			Interval:         5 * time.Minute,
			Timeout:          2 * time.Minute,
			Timezone:         "UTC",
			UnusualHourStart: 0,
			UnusualHourEnd:   6,
			Rules: RulesConfig{
				OTPBruteforce:      RuleConfig{Enabled: true, Threshold: 5, Window: 15 * time.Minute},
				RapidLogins:        RuleConfig{Enabled: true, Threshold: 5, Window: 10 * time.Minute},
				UnusualHourLogin:   RuleConfig{Enabled: true},
				ExcessiveDownloads: RuleConfig{Enabled: true, Threshold: 5, Window: 5 * time.Minute},
				UnauthorizedAccess: RuleConfig{Enabled: true},
				SuspiciousSequence: RuleConfig{Enabled: true, Window: 10 * time.Minute},
			},
		},
		Anomaly: AnomalyConfig{
			Enabled:   true,
			ModelPath: "/data/models/isolation_forest.json",
			S3Region:  "us-east-1",
			Window:    15 * time.Minute,
			CacheTTL:  5 * time.Minute,
		},
		Access: AccessConfig{
			ManagerMinTier: 3,
		},
		Bootstrap: BootstrapConfig{
			Enabled:    true,
			Backend:    "memory",
			Key:        DefaultBootstrapKey,
			TTL:        time.Hour,
			Timeout:    2 * time.Second,
			BadgerPath: "/data/guard",
			RedisAddr:  "127.0.0.1:6379",
		},
		NATS: NATSConfig{
			Enabled:                 false,
			URL:                     "nats://127.0.0.1:4222",
			Subject:                 "insiderwatch.alerts",
			MaxReconnects:           -1,
			ReconnectWait:           2 * time.Second,
			BreakerMaxRequests:      3,
			BreakerTimeout:          10 * time.Second,
			BreakerFailureThreshold: 5,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file and
// the environment, in that order, then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice settings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":                  "server.host",
	"http_port":                  "server.port",
	"http_read_timeout":          "server.read_timeout",
	"http_write_timeout":         "server.write_timeout",
	"http_shutdown_timeout":      "server.shutdown_timeout",
	"cors_origins":               "security.cors_origins",
	"rate_limit_requests":        "security.rate_limit_requests",
	"rate_limit_window":          "security.rate_limit_window",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"log_caller":                 "logging.caller",
	"duckdb_path":                "database.path",
	"duckdb_max_memory":          "database.max_memory",
	"duckdb_threads":             "database.threads",
	"detection_enabled":          "detection.enabled",
	"detection_interval":         "detection.interval",
	"detection_timeout":          "detection.timeout",
	"detection_timezone":         "detection.timezone",
	"unusual_hour_start":         "detection.unusual_hour_start",
	"unusual_hour_end":           "detection.unusual_hour_end",
	"otp_bruteforce_threshold":   "detection.rules.otp_bruteforce.threshold",
	"otp_bruteforce_window":      "detection.rules.otp_bruteforce.window",
	"rapid_logins_threshold":     "detection.rules.rapid_logins.threshold",
	"rapid_logins_window":        "detection.rules.rapid_logins.window",
	"excessive_downloads_limit":  "detection.rules.excessive_downloads.threshold",
	"excessive_downloads_window": "detection.rules.excessive_downloads.window",
	"suspicious_sequence_window": "detection.rules.suspicious_sequence.window",
	"anomaly_enabled":            "anomaly.enabled",
	"anomaly_model_path":         "anomaly.model_path",
	"anomaly_s3_bucket":          "anomaly.s3_bucket",
	"anomaly_s3_key":             "anomaly.s3_key",
	"anomaly_s3_region":          "anomaly.s3_region",
	"anomaly_s3_endpoint":        "anomaly.s3_endpoint",
	"anomaly_s3_use_path_style":  "anomaly.s3_use_path_style",
	"anomaly_s3_access_key_id":   "anomaly.s3_access_key_id",
	"anomaly_s3_secret_key":      "anomaly.s3_secret_key",
	"anomaly_window":             "anomaly.window",
	"anomaly_use_threshold":      "anomaly.use_threshold",
	"anomaly_threshold":          "anomaly.threshold",
	"anomaly_cache_ttl":          "anomaly.cache_ttl",
	"access_manager_min_tier":    "access.manager_min_tier",
	"bootstrap_enabled":          "bootstrap.enabled",
	"bootstrap_backend":          "bootstrap.backend",
	"bootstrap_ttl":              "bootstrap.ttl",
	"bootstrap_badger_path":      "bootstrap.badger_path",
	"redis_addr":                 "bootstrap.redis_addr",
	"redis_password":             "bootstrap.redis_password",
	"redis_db":                   "bootstrap.redis_db",
	"nats_enabled":               "nats.enabled",
	"nats_url":                   "nats.url",
	"nats_subject":               "nats.subject",
	"nats_jetstream":             "nats.jetstream",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
