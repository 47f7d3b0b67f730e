// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/tomtom215/insiderwatch/internal/anomaly"
	"github.com/tomtom215/insiderwatch/internal/detection"
	"github.com/tomtom215/insiderwatch/internal/guard"
	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

// Bootstrap gates the first run after start on a guard key.
type Bootstrap struct {
	Guard guard.Guard
	Key   string
	TTL   time.Duration
}

// Job runs fn every Interval as a supervised service. The first run starts
// immediately. Each run is bounded by Timeout; errors and panics are logged
// and the job waits for the next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error

	// Bootstrap, when set, may skip the first run.
	Bootstrap *Bootstrap

	runs     atomic.Int64
	failures atomic.Int64
}

// Runs returns the number of completed runs.
func (j *Job) Runs() int64 { return j.runs.Load() }

// Failures returns the number of failed or panicked runs.
func (j *Job) Failures() int64 { return j.failures.Load() }

// Serve implements suture.Service.
func (j *Job) Serve(ctx context.Context) error {
	if j.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", j.Name)
	}

	if j.acquireBootstrap(ctx) {
		j.RunOnce(ctx)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (j *Job) String() string { return j.Name }

// RunOnce executes one run with the job timeout and panic recovery.
func (j *Job) RunOnce(ctx context.Context) (err error) {
	runCtx := logging.ContextWithNewCorrelationID(ctx)
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
			logging.Ctx(runCtx).Error().
				Str("job", j.Name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("scheduled job panicked")
		}
		j.runs.Add(1)
		if err != nil {
			j.failures.Add(1)
			if !errors.Is(err, context.Canceled) {
				logging.Ctx(runCtx).Error().Err(err).Str("job", j.Name).Dur("duration", time.Since(start)).Msg("scheduled job failed")
			}
			return
		}
		logging.Ctx(runCtx).Debug().Str("job", j.Name).Dur("duration", time.Since(start)).Msg("scheduled job finished")
	}()

	return j.Run(runCtx)
}

func (j *Job) acquireBootstrap(ctx context.Context) bool {
	b := j.Bootstrap
	if b == nil || b.Guard == nil {
		return true
	}
	ok, err := b.Guard.Acquire(ctx, b.Key, b.TTL)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job", j.Name).Msg("bootstrap guard failed, running anyway")
		return true
	}
	if !ok {
		metrics.DetectionRunsSkipped.Inc()
		logging.Ctx(ctx).Info().Str("job", j.Name).Str("key", b.Key).Dur("ttl", b.TTL).
			Msg("startup run skipped, already ran within TTL")
	}
	return ok
}

// RuleRunner runs the detection rules once.
type RuleRunner interface {
	Run(ctx context.Context) (*detection.RunReport, error)
}

// ScoreRunner runs the anomaly scorer once.
type ScoreRunner interface {
	Run(ctx context.Context) (*anomaly.ScoreReport, error)
}

// DetectionCycle returns a job body that runs the rules and then the scorer.
// A failing rule run does not prevent scoring. scorer may be nil.
func DetectionCycle(rules RuleRunner, scorer ScoreRunner) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if _, err := rules.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("detection rules: %w", err))
		}
		if scorer != nil {
			if _, err := scorer.Run(ctx); err != nil {
				errs = append(errs, fmt.Errorf("anomaly scoring: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
