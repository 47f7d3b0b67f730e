// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/logging"
)

// Guard grants a key to one caller per TTL.
type Guard interface {
	// Acquire reports whether the caller holds key for ttl. A false result
	// means another caller acquired it within the last ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// =====================================================
// Memory
// =====================================================

// Memory keeps acquisition timestamps in process.
type Memory struct {
	mu       sync.Mutex
	acquired map[string]time.Time
	now      func() time.Time
}

// NewMemory creates an in-process guard. now may be nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{acquired: make(map[string]time.Time), now: now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if at, ok := m.acquired[key]; ok && now.Sub(at) < ttl {
		return false, nil
	}
	m.acquired[key] = now
	return true, nil
}

// =====================================================
// Badger
// =====================================================

// Badger stores the key as a TTL entry so it survives restarts within the TTL.
type Badger struct {
	db *badger.DB
	// mu serializes the read-then-write; badger's optimistic transactions
	// would otherwise surface conflicts as errors.
	mu sync.Mutex
}

// NewBadger wraps an open database.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// OpenBadger opens a badger database at path, or in memory when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return db, nil
}

func (b *Badger) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acquired := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entry := badger.NewEntry([]byte(key), []byte(time.Now().UTC().Format(time.RFC3339))).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badger guard %s: %w", key, err)
	}
	return acquired, nil
}

// =====================================================
// Redis
// =====================================================

// Redis uses SET NX with an expiry, so every process sharing the server
// shares the guard.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis guard %s: %w", key, err)
	}
	return ok, nil
}

// =====================================================
// Failure policy
// =====================================================

// AllowOnError treats a failing or slow backend as an acquisition, so a
// broken guard never blocks a run.
type AllowOnError struct {
	inner   Guard
	timeout time.Duration
}

// NewAllowOnError wraps inner. A non-positive timeout leaves calls unbounded.
func NewAllowOnError(inner Guard, timeout time.Duration) *AllowOnError {
	return &AllowOnError{inner: inner, timeout: timeout}
}

func (a *AllowOnError) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ok, err := a.inner.Acquire(ctx, key, ttl)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("bootstrap guard unavailable, allowing run")
		return true, nil
	}
	return ok, nil
}

// =====================================================
// Construction
// =====================================================

// New builds the configured guard wrapped in AllowOnError. The returned
// close function releases the backend. A badger database that cannot be
// opened degrades to the in-process guard; only an unknown backend is an error.
func New(cfg *config.BootstrapConfig) (Guard, func() error, error) {
	noop := func() error { return nil }

	var inner Guard
	closer := noop
	switch cfg.Backend {
	case "", "memory":
		inner = NewMemory(nil)
	case "badger":
		db, err := OpenBadger(cfg.BadgerPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.BadgerPath).
				Msg("bootstrap guard store unavailable, falling back to in-process guard")
			inner = NewMemory(nil)
			break
		}
		inner = NewBadger(db)
		closer = db.Close
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.Timeout,
			ReadTimeout: cfg.Timeout,
		})
		inner = NewRedis(client)
		closer = client.Close
	default:
		return nil, noop, fmt.Errorf("unknown bootstrap backend %q", cfg.Backend)
	}
	return NewAllowOnError(inner, cfg.Timeout), closer, nil
}
