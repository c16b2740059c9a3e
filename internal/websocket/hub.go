package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// Message types sent to clients
const (
	TypeRunCompleted          = "run_completed"
	TypeSubscriptionConfirmed = "subscription_confirmed"
	TypeUnsubscribed          = "unsubscription_confirmed"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// ClientCounter observes the number of connected clients
type ClientCounter interface {
	SetWebSocketClients(n int)
}

// Hub maintains the set of active clients and broadcasts run records to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	counter    ClientCounter
	log        *logger.Logger
}

type broadcastMessage struct {
	portfolioID string
	data        []byte
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.RWMutex
	closed        bool
	subscriptions map[string]bool // portfolio IDs; empty means all
}

// Message represents a WebSocket message
type Message struct {
	Type        string      `json:"type"`
	PortfolioID string      `json:"portfolio_id,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
	ID          string      `json:"id,omitempty"`
}

// SubscriptionMessage is sent by clients to narrow the runs they receive
type SubscriptionMessage struct {
	Type       string   `json:"type"`
	Portfolios []string `json:"portfolios"`
	ID         string   `json:"id,omitempty"`
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// NewHub creates a new WebSocket hub. counter may be nil.
func NewHub(counter ClientCounter) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan broadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		counter:    counter,
		log:        logger.GetLogger("websocket.hub"),
	}
}

// Run starts the WebSocket hub and blocks until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("WebSocket hub shutting down")
			for client := range h.clients {
				client.close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Infof("Client %s registered", client.id)
			h.reportClients()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.log.Infof("Client %s unregistered", client.id)
				h.reportClients()
			}

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// SaveRun broadcasts a completed run to the clients following its portfolio
func (h *Hub) SaveRun(ctx context.Context, record models.RunRecord) error {
	data, err := json.Marshal(Message{
		Type:        TypeRunCompleted,
		PortfolioID: record.PortfolioID,
		Data:        record,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling run record")
	}

	select {
	case h.broadcast <- broadcastMessage{portfolioID: record.PortfolioID, data: data}:
		return nil
	case <-h.done:
		return errors.Unavailable("websocket hub is stopped", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWebSocket handles WebSocket upgrade and client management
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) reportClients() {
	if h.counter != nil {
		h.counter.SetWebSocketClients(len(h.clients))
	}
}

// broadcastToClients sends to every interested client, dropping the ones
// that cannot keep up
func (h *Hub) broadcastToClients(message broadcastMessage) {
	for client := range h.clients {
		if !client.follows(message.portfolioID) {
			continue
		}
		if !client.enqueue(message.data) {
			delete(h.clients, client)
			client.close()
			h.log.Warnf("Dropped slow client %s", client.id)
			h.reportClients()
		}
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(messageData)
	}
}

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

// handleMessage handles incoming messages from the client
func (c *Client) handleMessage(messageData []byte) {
	var msg SubscriptionMessage
	if err := json.Unmarshal(messageData, &msg); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		for _, id := range msg.Portfolios {
			c.subscriptions[id] = true
		}
		c.mu.Unlock()
		c.sendMessage(Message{Type: TypeSubscriptionConfirmed, Data: map[string]interface{}{"portfolios": msg.Portfolios}, ID: msg.ID})
	case "unsubscribe":
		c.mu.Lock()
		for _, id := range msg.Portfolios {
			delete(c.subscriptions, id)
		}
		c.mu.Unlock()
		c.sendMessage(Message{Type: TypeUnsubscribed, Data: map[string]interface{}{"portfolios": msg.Portfolios}, ID: msg.ID})
	case "ping":
		c.sendMessage(Message{Type: TypePong, ID: msg.ID})
	default:
		c.sendError("Unknown message type")
	}
}

func (c *Client) follows(portfolioID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[portfolioID]
}

// enqueue queues data without blocking. It reports false when the buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Errorf("Failed to marshal message: %v", err)
		return
	}
	if !c.enqueue(data) {
		c.hub.log.Warnf("Send buffer full for client %s", c.id)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errorMsg string) {
	c.sendMessage(Message{
		Type:  TypeError,
		Error: errorMsg,
	})
}
