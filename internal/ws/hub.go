// Package ws delivers match events to connected users over websockets.
// Each user has a private channel; a match event goes only to the two
// counterparties.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"spotx/internal/exchange"

	"github.com/gorilla/websocket"
)

const eventOrderMatched = "order.matched"

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks websocket connections by user id.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[int64]map[*client]struct{}),
		log:     logger,
	}
}

// Add registers a connection for a user and returns a remove function
// the caller must invoke when the connection ends.
func (h *Hub) Add(userID int64, conn *websocket.Conn) func() {
	c := &client{conn: conn}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clients[userID], c)
		if len(h.clients[userID]) == 0 {
			delete(h.clients, userID)
		}
	}
}

// NotifyMatch sends the event to both counterparties. Users without a
// connection are skipped; write failures are logged and the failing
// connection dropped, never surfaced to the matching engine.
func (h *Hub) NotifyMatch(ctx context.Context, event exchange.MatchEvent) error {
	data, err := json.Marshal(envelope{Event: eventOrderMatched, Data: event})
	if err != nil {
		return err
	}

	h.send(event.BuyerID, data)
	if event.SellerID != event.BuyerID {
		h.send(event.SellerID, data)
	}
	return nil
}

func (h *Hub) send(userID int64, data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.log.Warn("dropping websocket client",
				slog.Int64("user_id", userID), slog.String("error", err.Error()))
			h.mu.Lock()
			delete(h.clients[userID], c)
			h.mu.Unlock()
			c.conn.Close()
		}
	}
}
