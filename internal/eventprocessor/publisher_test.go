// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package eventprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

// mockPublisher records messages and fails while err is set.
type mockPublisher struct {
	mu     sync.Mutex
	err    error
	sent   []*message.Message
	closed int
}

func (m *mockPublisher) Publish(_ string, msgs ...*message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

func (m *mockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockPublisher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func testBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 2,
	})
}

func TestPublisher_SetsMessageID(t *testing.T) {
	inner := &mockPublisher{}
	pub := NewBreakerPublisher(inner, testBreaker("msgid-test"))

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	preset := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	preset.Metadata.Set(natsgo.MsgIdHdr, "fixed")

	if err := pub.Publish("insiderwatch.alerts", msg, preset); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := msg.Metadata.Get(natsgo.MsgIdHdr); got != msg.UUID {
		t.Errorf("Nats-Msg-Id = %q, want message UUID", got)
	}
	if got := preset.Metadata.Get(natsgo.MsgIdHdr); got != "fixed" {
		t.Errorf("preset Nats-Msg-Id overwritten: %q", got)
	}
	if len(inner.sent) != 2 {
		t.Errorf("sent = %d, want 2", len(inner.sent))
	}
}

func TestPublisher_BreakerOpensAndRecovers(t *testing.T) {
	const name = "recover-test"
	inner := &mockPublisher{err: errors.New("nats: no servers available")}
	pub := NewBreakerPublisher(inner, testBreaker(name))

	for i := 0; i < 2; i++ {
		if err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil)); err == nil {
			t.Fatal("expected failure")
		}
	}
	if pub.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", pub.State())
	}

	err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Publish() while open = %v, want ErrOpenState", err)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(name)); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}

	inner.setErr(nil)
	time.Sleep(80 * time.Millisecond)
	if err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil)); err != nil {
		t.Fatalf("Publish() after timeout = %v", err)
	}
	if pub.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", pub.State())
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerTransitions.WithLabelValues(name, "open", "half-open")); got != 1 {
		t.Errorf("open->half-open transitions = %v", got)
	}
}

func TestPublisher_Close(t *testing.T) {
	inner := &mockPublisher{}
	pub := NewBreakerPublisher(inner, nil)

	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if inner.closed != 1 {
		t.Errorf("inner closed %d times, want 1", inner.closed)
	}
	if err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish() after Close = %v", err)
	}
}

func TestPublisher_DeliversThroughWatermill(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	received, err := ps.Subscribe(ctx, "insiderwatch.alerts")
	if err != nil {
		t.Fatal(err)
	}

	pub := NewBreakerPublisher(ps, testBreaker("gochannel-test"))
	before := testutil.ToFloat64(metrics.NATSMessagesPublished)
	if err := pub.Publish("insiderwatch.alerts", message.NewMessage(watermill.NewUUID(), []byte(`{"type":"alert"}`))); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		msg.Ack()
		if string(msg.Payload) != `{"type":"alert"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.Metadata.Get(natsgo.MsgIdHdr) != msg.UUID {
			t.Error("message id header missing")
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
	if got := testutil.ToFloat64(metrics.NATSMessagesPublished) - before; got != 1 {
		t.Errorf("published counter delta = %v, want 1", got)
	}
}

func TestBreakerConfigFromNATS(t *testing.T) {
	got := BreakerConfigFromNATS(&config.NATSConfig{BreakerFailureThreshold: 9})
	if got.Name != BreakerName || got.FailureThreshold != 9 {
		t.Errorf("config = %+v", got)
	}
	def := DefaultCircuitBreakerConfig(BreakerName)
	if got.MaxRequests != def.MaxRequests || got.Timeout != def.Timeout {
		t.Errorf("zero values did not keep defaults: %+v", got)
	}
}

func TestStateValue(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateHalfOpen, 1},
		{gobreaker.StateOpen, 2},
	}
	for _, tt := range tests {
		if got := stateValue(tt.state); got != tt.want {
			t.Errorf("stateValue(%v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
