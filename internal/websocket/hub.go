// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// broadcastBuffer bounds queued broadcasts; BroadcastJSON drops when full.
const broadcastBuffer = 256

// Message is the JSON frame exchanged with clients. Control frames carry
// only a type.
type Message struct {
	Type  string      `json:"type"`
	Alert interface{} `json:"alert,omitempty"`
}

// Hub maintains the active clients and broadcasts to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. It does nothing until RunWithContext is called.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext processes registrations and broadcasts until ctx ends,
// then closes every client and returns ctx.Err().
//
// Shutdown is checked first, then lifecycle events, then broadcasts, so a
// client registered before a broadcast always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Info().Str("client_id", client.ID()).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Info().Str("client_id", client.ID()).Int("total_clients", n).Msg("websocket client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.GetClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

// sortedClients returns clients in connection order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].seq < clients[j].seq
	})
	return clients
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
		logging.Warn().Str("client_id", client.ID()).Msg("websocket client dropped, send buffer full")
	}
	if len(slow) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// BroadcastJSON queues {"type": messageType, "alert": alert} for every
// client. The message is dropped when the broadcast queue is full.
func (h *Hub) BroadcastJSON(messageType string, alert interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Alert: alert}:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes msg as JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
