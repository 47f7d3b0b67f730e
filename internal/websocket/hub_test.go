// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/insiderwatch/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func fakeClient(hub *Hub, buffer int) *Client {
	return &Client{id: "test", seq: clientSeq.Add(1), hub: hub, send: make(chan Message, buffer)}
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.GetClientCount(), want)
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub, _, _ := startHub(t)
	a, b := fakeClient(hub, 4), fakeClient(hub, 4)
	hub.Register <- a
	hub.Register <- b
	waitForCount(t, hub, 2)

	hub.BroadcastJSON("alert_created", map[string]int{"id": 7})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != "alert_created" {
			t.Errorf("type = %q", msg.Type)
		}
	}
}

func TestHub_Unregister(t *testing.T) {
	hub, _, _ := startHub(t)
	c := fakeClient(hub, 4)
	hub.Register <- c
	waitForCount(t, hub, 1)

	hub.Unregister <- c
	waitForCount(t, hub, 0)
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}

	// A second unregister is a no-op.
	hub.Unregister <- c
	waitForCount(t, hub, 0)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _, _ := startHub(t)
	slow := fakeClient(hub, 1)
	fast := fakeClient(hub, 8)
	hub.Register <- slow
	hub.Register <- fast
	waitForCount(t, hub, 2)

	hub.BroadcastJSON("alert_created", 1)
	hub.BroadcastJSON("alert_created", 2)
	waitForCount(t, hub, 1)

	if got := receive(t, fast); got.Alert != 1 {
		t.Errorf("first message alert = %v", got.Alert)
	}
	if got := receive(t, fast); got.Alert != 2 {
		t.Errorf("second message alert = %v", got.Alert)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel, done := startHub(t)
	c := fakeClient(hub, 4)
	hub.Register <- c
	waitForCount(t, hub, 1)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("clients = %d after shutdown", hub.GetClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel not closed")
	}
}

func TestHub_BroadcastJSONDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < broadcastBuffer+10; i++ {
		hub.BroadcastJSON("alert_created", i)
	}
	if len(hub.broadcast) != broadcastBuffer {
		t.Errorf("queued = %d, want %d", len(hub.broadcast), broadcastBuffer)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePong})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"pong"}` {
		t.Errorf("MarshalMessage() = %s", data)
	}
}
