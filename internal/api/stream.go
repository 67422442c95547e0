package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jamhan/predictionmarket/pkg/types"
)

// Hub manages WebSocket clients and routes stream events to the clients
// subscribed to each event's market.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan marketMessage
	mu         sync.RWMutex
	logger     *slog.Logger
}

// marketMessage is a pre-marshalled stream event tagged with the market it
// belongs to, so Run can route it only to subscribers of that market.
type marketMessage struct {
	marketID string
	data     []byte
}

// Client represents a connected WebSocket client subscribed to one
// market's stream (spec.md §6 Subscribe). marketID is fixed at connect
// time from the ws request's market_id query parameter.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	marketID string
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan marketMessage, 256),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run starts the hub's main loop (should be called in a goroutine)
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected", "market_id", client.marketID, "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", "market_id", client.marketID, "count", len(h.clients))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.marketID != "" && client.marketID != msg.marketID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client can't keep up, close it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent routes a stream event (ORDER_BOOK_UPDATE, TRADE_UPDATE, or
// MARKET_UPDATE per spec.md §6) to every client subscribed to evt.MarketID,
// plus any client with no market filter.
func (h *Hub) BroadcastEvent(evt types.StreamEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "market_id", evt.MarketID, "error", err)
		return
	}

	select {
	case h.broadcast <- marketMessage{marketID: evt.MarketID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "market_id", evt.MarketID)
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
		// The stream is read-only; client frames are not part of the protocol.
	}
}

// NewClient creates a new WebSocket client subscribed to marketID (empty
// means every market) and starts its pumps.
func NewClient(hub *Hub, conn *websocket.Conn, marketID string) *Client {
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		marketID: marketID,
	}

	client.hub.register <- client

	// Start pumps
	go client.writePump()
	go client.readPump()

	return client
}
