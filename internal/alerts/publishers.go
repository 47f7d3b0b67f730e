// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package alerts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Broadcaster sends {"type": messageType, "alert": alert} to every connected
// client.
type Broadcaster interface {
	BroadcastJSON(messageType string, alert interface{})
}

// BroadcastPublisher adapts a websocket hub to Publisher.
type BroadcastPublisher struct {
	hub Broadcaster
}

// NewBroadcastPublisher creates a publisher that pushes to hub.
func NewBroadcastPublisher(hub Broadcaster) *BroadcastPublisher {
	return &BroadcastPublisher{hub: hub}
}

// Name returns the publisher name.
func (p *BroadcastPublisher) Name() string { return "websocket" }

// Publish broadcasts the envelope; the frame has the same shape as the NATS
// payload.
func (p *BroadcastPublisher) Publish(_ context.Context, env *Envelope) error {
	p.hub.BroadcastJSON(env.Type, env.Alert)
	return nil
}

// WatermillPublisher publishes announcements as JSON messages on a topic.
type WatermillPublisher struct {
	name      string
	topic     string
	publisher message.Publisher
}

// NewWatermillPublisher creates a publisher writing to topic on pub.
func NewWatermillPublisher(name, topic string, pub message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{name: name, topic: topic, publisher: pub}
}

// Name returns the publisher name.
func (p *WatermillPublisher) Name() string { return p.name }

// Topic returns the destination topic.
func (p *WatermillPublisher) Topic() string { return p.topic }

// Publish marshals env and publishes it. The message carries the alert id,
// type and channel as metadata.
func (p *WatermillPublisher) Publish(ctx context.Context, env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal alert envelope: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", env.Type)
	msg.Metadata.Set("channel", Channel)
	if env.Alert != nil {
		msg.Metadata.Set("alert_id", strconv.FormatInt(env.Alert.ID, 10))
	}

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}
