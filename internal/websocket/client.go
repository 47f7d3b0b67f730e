// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256

	// Inbound budget per client. Dashboards only send pings.
	inboundRate  rate.Limit = 2
	inboundBurst            = 10
	// maxViolations is how many over-budget messages end the connection.
	maxViolations = 5
)

// clientSeq orders clients for broadcast and shutdown.
var clientSeq atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id      string
	seq     uint64
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	limiter *rate.Limiter
}

// NewClient creates a client for conn. It is not registered until Start.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		seq:     clientSeq.Add(1),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		limiter: rate.NewLimiter(inboundRate, inboundBurst),
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string {
	return c.id
}

// Start registers the client with the hub and starts its pumps.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	violations := 0
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Error().Err(err).Str("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}

		if !c.limiter.Allow() {
			violations++
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			if violations >= maxViolations {
				logging.Warn().Str("client_id", c.id).Msg("websocket client exceeded message rate, disconnecting")
				return
			}
			continue
		}

		if msg.Type == MessageTypePing {
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Error().Err(err).Str("client_id", c.id).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
