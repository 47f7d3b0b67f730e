// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package eventprocessor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher guards a Watermill publisher with a circuit breaker. It
// implements message.Publisher.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewBreakerPublisher wraps pub. breaker may be nil.
func NewBreakerPublisher(pub message.Publisher, breaker *gobreaker.CircuitBreaker[struct{}]) *Publisher {
	return &Publisher{publisher: pub, breaker: breaker}
}

// New connects to NATS and returns a breaker-guarded publisher.
func New(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	pub, err := NewNATSPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewBreakerPublisher(pub, NewCircuitBreaker(BreakerConfigFromNATS(cfg))), nil
}

// NewNATSPublisher creates the Watermill NATS publisher. The connection
// retries in the background, so a broker that is down at startup is not an
// error here.
func NewNATSPublisher(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("insiderwatch"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: cfg.JetStream,
			TrackMsgId:    cfg.JetStream,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher for %s: %w", cfg.URL, err)
	}
	return pub, nil
}

// Publish sends msgs to topic through the breaker. While the breaker is open
// the call fails fast with gobreaker.ErrOpenState.
func (p *Publisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}

	var err error
	if p.breaker != nil {
		_, err = p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.publisher.Publish(topic, msgs...)
		})
		metrics.CircuitBreakerRequests.WithLabelValues(p.breaker.Name(), resultLabel(err)).Inc()
	} else {
		err = p.publisher.Publish(topic, msgs...)
	}
	if err != nil {
		return err
	}

	metrics.NATSMessagesPublished.Add(float64(len(msgs)))
	return nil
}

// State returns the breaker state, or closed when no breaker is set.
func (p *Publisher) State() gobreaker.State {
	if p.breaker == nil {
		return gobreaker.StateClosed
	}
	return p.breaker.State()
}

// Close closes the underlying publisher. Further calls are no-ops.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "failure"
	}
}
