// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package eventprocessor

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

// BreakerName labels the alert publisher breaker in metrics and logs.
const BreakerName = "nats-alerts"

// CircuitBreakerConfig holds gobreaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns the settings used when none are configured.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerConfigFromNATS overlays the non-zero NATS breaker settings on the defaults.
func BreakerConfigFromNATS(cfg *config.NATSConfig) CircuitBreakerConfig {
	out := DefaultCircuitBreakerConfig(BreakerName)
	if cfg.BreakerMaxRequests > 0 {
		out.MaxRequests = cfg.BreakerMaxRequests
	}
	if cfg.BreakerTimeout > 0 {
		out.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerFailureThreshold > 0 {
		out.FailureThreshold = cfg.BreakerFailureThreshold
	}
	return out
}

// NewCircuitBreaker creates a breaker that trips after FailureThreshold
// consecutive failures and reports its state to Prometheus.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](settings)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
