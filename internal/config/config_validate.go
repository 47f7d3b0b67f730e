// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/validation"
)

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateAnomaly(); err != nil {
		return err
	}
	if err := c.validateBootstrap(); err != nil {
		return err
	}
	return c.validateNATS()
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateDetection() error {
	if _, err := time.LoadLocation(c.Detection.Timezone); err != nil {
		return fmt.Errorf("DETECTION_TIMEZONE %q is not a valid time zone: %w", c.Detection.Timezone, err)
	}
	if c.Detection.UnusualHourStart >= c.Detection.UnusualHourEnd {
		return fmt.Errorf("unusual_hour_start (%d) must be before unusual_hour_end (%d)",
			c.Detection.UnusualHourStart, c.Detection.UnusualHourEnd)
	}

	windowed := map[string]RuleConfig{
		"otp_bruteforce":      c.Detection.Rules.OTPBruteforce,
		"rapid_logins":        c.Detection.Rules.RapidLogins,
		"excessive_downloads": c.Detection.Rules.ExcessiveDownloads,
		"suspicious_sequence": c.Detection.Rules.SuspiciousSequence,
	}
	for name, rule := range windowed {
		if rule.Enabled && rule.Window <= 0 {
			return fmt.Errorf("detection.rules.%s.window must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateAnomaly() error {
	if !c.Anomaly.Enabled {
		return nil
	}
	if c.Anomaly.S3Bucket == "" && c.Anomaly.ModelPath == "" {
		return fmt.Errorf("ANOMALY_MODEL_PATH or ANOMALY_S3_BUCKET is required when the anomaly scorer is enabled")
	}
	if c.Anomaly.S3Bucket != "" && c.Anomaly.S3Key == "" {
		return fmt.Errorf("ANOMALY_S3_KEY is required when ANOMALY_S3_BUCKET is set")
	}
	return nil
}

func (c *Config) validateBootstrap() error {
	if !c.Bootstrap.Enabled {
		return nil
	}
	switch c.Bootstrap.Backend {
	case "badger":
		if c.Bootstrap.BadgerPath == "" {
			return fmt.Errorf("BOOTSTRAP_BADGER_PATH is required for the badger backend")
		}
	case "redis":
		if c.Bootstrap.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_ENABLED=true")
	}
	return nil
}
