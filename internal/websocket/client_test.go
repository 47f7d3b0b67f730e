// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package websocket

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// serveHub upgrades every request and attaches the connection to hub.
func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn).Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestNewClient_AssignsIDs(t *testing.T) {
	hub := NewHub()
	a, b := NewClient(hub, nil), NewClient(hub, nil)
	if _, err := uuid.Parse(a.ID()); err != nil {
		t.Errorf("ID() = %q, not a UUID", a.ID())
	}
	if a.ID() == b.ID() || a.seq >= b.seq {
		t.Error("clients not uniquely ordered")
	}
	if cap(a.send) != sendBuffer {
		t.Errorf("send buffer = %d", cap(a.send))
	}
}

func TestClient_ReceivesBroadcast(t *testing.T) {
	hub, _, _ := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitForCount(t, hub, 1)

	hub.BroadcastJSON("alert_created", map[string]string{"user_id": "u-42"})

	msg := readMessage(t, conn)
	if msg.Type != "alert_created" {
		t.Errorf("type = %q", msg.Type)
	}
	data, ok := msg.Alert.(map[string]interface{})
	if !ok || data["user_id"] != "u-42" {
		t.Errorf("alert = %#v", msg.Alert)
	}
}

func TestClient_PingPong(t *testing.T) {
	hub, _, _ := startHub(t)
	conn := dial(t, serveHub(t, hub))

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("type = %q, want pong", msg.Type)
	}
}

func TestClient_DisconnectOnClose(t *testing.T) {
	hub, _, _ := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitForCount(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForCount(t, hub, 0)
}

func TestClient_RateLimitDisconnects(t *testing.T) {
	hub, _, _ := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitForCount(t, hub, 1)

	for i := 0; i < inboundBurst+maxViolations+5; i++ {
		if err := conn.WriteJSON(Message{Type: "noise"}); err != nil {
			break
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatal("connection still open after exceeding the message rate")
			}
			break
		}
	}
	waitForCount(t, hub, 0)
}
