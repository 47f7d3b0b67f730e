// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

// Package config loads Insiderwatch configuration with Koanf v2.
//
// Sources are layered in order of increasing priority:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/insiderwatch/config.yaml)
//  3. Environment variables listed in the env mapping table
//
// The merged result is validated with struct tags and cross-field checks
// before it is returned.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Detection DetectionConfig `koanf:"detection"`
	Anomaly   AnomalyConfig   `koanf:"anomaly"`
	Access    AccessConfig    `koanf:"access"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
	NATS      NATSConfig      `koanf:"nats"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SecurityConfig holds CORS and rate limiting for the HTTP API.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig locates the DuckDB file. ":memory:" keeps everything in RAM.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// DetectionConfig drives the periodic detection cycle.
type DetectionConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Interval         time.Duration `koanf:"interval" validate:"gt=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	Timezone         string        `koanf:"timezone" validate:"required"`
	UnusualHourStart int           `koanf:"unusual_hour_start" validate:"gte=0,lte=23"`
	UnusualHourEnd   int           `koanf:"unusual_hour_end" validate:"gte=1,lte=24"`
	Rules            RulesConfig   `koanf:"rules"`
}

// RulesConfig holds per-rule settings.
type RulesConfig struct {
	OTPBruteforce      RuleConfig `koanf:"otp_bruteforce"`
	RapidLogins        RuleConfig `koanf:"rapid_logins"`
	UnusualHourLogin   RuleConfig `koanf:"unusual_hour_login"`
	ExcessiveDownloads RuleConfig `koanf:"excessive_downloads"`
	UnauthorizedAccess RuleConfig `koanf:"unauthorized_access"`
	SuspiciousSequence RuleConfig `koanf:"suspicious_sequence"`
}

// RuleConfig configures one detection rule. Threshold and Window are ignored
// by rules that do not count events or that scan without a window.
type RuleConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold" validate:"gte=0"`
	Window    time.Duration `koanf:"window" validate:"gte=0"`
}

// AnomalyConfig configures the isolation-forest scorer.
// When S3Bucket is set the artifact is fetched from S3, otherwise from ModelPath.
type AnomalyConfig struct {
	Enabled        bool          `koanf:"enabled"`
	ModelPath      string        `koanf:"model_path"`
	S3Bucket       string        `koanf:"s3_bucket"`
	S3Key          string        `koanf:"s3_key"`
	S3Region       string        `koanf:"s3_region"`
	S3Endpoint     string        `koanf:"s3_endpoint"`
	S3UsePathStyle bool          `koanf:"s3_use_path_style"`
	S3AccessKeyID  string        `koanf:"s3_access_key_id"`
	S3SecretKey    string        `koanf:"s3_secret_key"`
	Window         time.Duration `koanf:"window" validate:"gt=0"`
	UseThreshold   bool          `koanf:"use_threshold"`
	Threshold      float64       `koanf:"threshold"`
	CacheTTL       time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

// ThresholdPtr returns the configured threshold, or nil to defer to the model.
func (a AnomalyConfig) ThresholdPtr() *float64 {
	if !a.UseThreshold {
		return nil
	}
	t := a.Threshold
	return &t
}

// AccessConfig configures the access decision engine.
type AccessConfig struct {
	ManagerMinTier int `koanf:"manager_min_tier" validate:"gte=0"`
}

// BootstrapConfig configures the startup guard that suppresses redundant runs.
type BootstrapConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Backend       string        `koanf:"backend" validate:"oneof=memory badger redis"`
	Key           string        `koanf:"key" validate:"required"`
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	BadgerPath    string        `koanf:"badger_path"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
}

// NATSConfig configures the alert publisher.
type NATSConfig struct {
	Enabled                 bool          `koanf:"enabled"`
	URL                     string        `koanf:"url"`
	Subject                 string        `koanf:"subject"`
	JetStream               bool          `koanf:"jetstream"`
	MaxReconnects           int           `koanf:"max_reconnects"`
	ReconnectWait           time.Duration `koanf:"reconnect_wait" validate:"gte=0"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
}
