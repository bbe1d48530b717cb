package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub fans settlement events out to connected WebSocket clients. It
// implements engine.Notifier so the engine can hand events straight to it.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Settlement events from the engine
	events chan engine.Event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Per-market subscriptions
	marketSubscriptions map[uint64]map[*Client]bool

	// Per-account subscriptions
	accountSubscriptions map[string]map[*Client]bool

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Principal account (empty if not authenticated)
	account string

	// Client ID
	id string

	// Subscriptions
	subscriptions map[string]bool

	// Last seen timestamp
	lastSeen time.Time
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Message types
const (
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
	MessageTypeSettlementEvent = "settlement_event"
)

// Channel types. Market channels carry lifecycle and bet events for one
// market ("markets.<id>") or all markets ("markets"). The account channel
// carries the authenticated principal's own bets and claims.
const (
	ChannelMarkets = "markets"
	ChannelAccount = "account"
)

// WebSocket connection settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:              make(map[*Client]bool),
		events:               make(chan engine.Event, 256),
		register:             make(chan *Client),
		unregister:           make(chan *Client),
		marketSubscriptions:  make(map[uint64]map[*Client]bool),
		accountSubscriptions: make(map[string]map[*Client]bool),
	}
}

// Publish implements engine.Notifier. It must not block the engine, so the
// event is dropped when the hub is backed up.
func (h *Hub) Publish(e engine.Event) {
	select {
	case h.events <- e:
	default:
		logrus.WithField("event", e.Name).Warn("WebSocket hub backed up, dropping event")
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.events:
			h.dispatchEvent(event)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// registerClient registers a new client
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	logrus.Infof("WebSocket client registered: %s", client.id)

	// Send welcome message
	welcome := Message{
		Type:      "welcome",
		Data:      map[string]interface{}{"client_id": client.id},
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
			h.evictClient(client)
		}
	}
}

// unregisterClient unregisters a client
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		h.evictClient(client)
		logrus.Infof("WebSocket client unregistered: %s", client.id)
	}
}

// evictClient removes a client from the client set and from every
// subscription map, then closes its send channel. Caller holds the write
// lock. This is the only place send is ever closed; a client that stays in a
// subscription map after its channel closed would panic the dispatch loop on
// the next event.
func (h *Hub) evictClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	// Remove from market subscriptions
	for marketID, clients := range h.marketSubscriptions {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.marketSubscriptions, marketID)
			}
		}
	}

	// Remove from account subscriptions
	if client.account != "" {
		if clients, exists := h.accountSubscriptions[client.account]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.accountSubscriptions, client.account)
			}
		}
	}

	close(client.send)
}

// dispatchEvent routes an engine event to the clients subscribed to its
// market and to the account it concerns.
func (h *Hub) dispatchEvent(e engine.Event) {
	message := Message{
		Type:      MessageTypeSettlementEvent,
		Channel:   eventChannel(e),
		Data:      e,
		Timestamp: e.At.Unix(),
		ID:        e.ID,
	}

	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode settlement event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]bool)
	for client := range h.marketSubscriptions[0] {
		targets[client] = true
	}
	if id, ok := eventMarketID(e); ok {
		for client := range h.marketSubscriptions[id] {
			targets[client] = true
		}
	}
	if account, ok := e.Fields["account"].(string); ok {
		for client := range h.accountSubscriptions[account] {
			targets[client] = true
		}
	}

	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.evictClient(client)
		}
	}
}

// eventChannel names the channel an event is delivered on.
func eventChannel(e engine.Event) string {
	if id, ok := eventMarketID(e); ok {
		return fmt.Sprintf("%s.%d", ChannelMarkets, id)
	}
	return ChannelMarkets
}

// eventMarketID pulls the market id out of an event's fields.
func eventMarketID(e engine.Event) (uint64, bool) {
	switch v := e.Fields["market_id"].(type) {
	case uint64:
		return v, true
	case float64:
		return uint64(v), true
	}
	return 0, false
}

// pingClients sends ping messages to all clients
func (h *Hub) pingClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ping := Message{
		Type:      MessageTypePing,
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(ping); err == nil {
		for client := range h.clients {
			select {
			case client.send <- data:
			default:
				h.evictClient(client)
			}
		}
	}
}

// SubscribeToMarket subscribes a client to one market's events. Market id 0
// subscribes to every market.
func (h *Hub) SubscribeToMarket(client *Client, marketID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.marketSubscriptions[marketID] == nil {
		h.marketSubscriptions[marketID] = make(map[*Client]bool)
	}
	h.marketSubscriptions[marketID][client] = true
	client.subscriptions[fmt.Sprintf("%s.%d", ChannelMarkets, marketID)] = true

	logrus.Infof("Client %s subscribed to market %d", client.id, marketID)
}

// UnsubscribeFromMarket unsubscribes a client from one market's events
func (h *Hub) UnsubscribeFromMarket(client *Client, marketID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.marketSubscriptions[marketID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.marketSubscriptions, marketID)
		}
	}
	delete(client.subscriptions, fmt.Sprintf("%s.%d", ChannelMarkets, marketID))

	logrus.Infof("Client %s unsubscribed from market %d", client.id, marketID)
}

// SubscribeToAccount subscribes a client to its own account's events
func (h *Hub) SubscribeToAccount(client *Client, account string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.accountSubscriptions[account] == nil {
		h.accountSubscriptions[account] = make(map[*Client]bool)
	}
	h.accountSubscriptions[account][client] = true
	client.subscriptions[ChannelAccount] = true

	logrus.Infof("Client %s subscribed to account %s", client.id, account)
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	// Get account from context if authenticated
	var account string
	if u, exists := c.Get("user"); exists {
		if user, ok := u.(*models.User); ok {
			account = user.Account
		}
	}

	// Create client
	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		account:       account,
		id:            fmt.Sprintf("%d", time.Now().UnixNano()),
		subscriptions: make(map[string]bool),
		lastSeen:      time.Now(),
	}

	// Register client
	h.register <- client

	// Start goroutines
	go client.writePump()
	go client.readPump()
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastSeen = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump handles writing messages to the WebSocket connection
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleMessage handles incoming messages from clients
func (c *Client) handleMessage(message []byte) {
	var req SubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendError("Invalid message format")
		return
	}

	switch req.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(req)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case MessageTypePong:
		c.lastSeen = time.Now()
	default:
		c.sendError("Unknown message type")
	}
}

// parseMarketChannel extracts a market id from "markets.<id>".
func parseMarketChannel(channel string) (uint64, bool) {
	rest, ok := strings.CutPrefix(channel, ChannelMarkets+".")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// handleSubscribe handles subscription requests
func (c *Client) handleSubscribe(req SubscriptionRequest) {
	switch {
	case req.Channel == ChannelMarkets:
		// All markets
		c.hub.SubscribeToMarket(c, 0)
	case req.Channel == ChannelAccount:
		// Require authentication for the account channel
		if c.account == "" {
			c.sendError("Authentication required for account channel")
			return
		}
		c.hub.SubscribeToAccount(c, c.account)
	default:
		marketID, ok := parseMarketChannel(req.Channel)
		if !ok {
			c.sendError("Invalid channel")
			return
		}
		c.hub.SubscribeToMarket(c, marketID)
	}

	// Send subscription confirmation
	response := Message{
		Type:      "subscribed",
		Channel:   req.Channel,
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(response); err == nil {
		c.trySend(data)
	}
}

// handleUnsubscribe handles unsubscription requests
func (c *Client) handleUnsubscribe(req SubscriptionRequest) {
	switch {
	case req.Channel == ChannelMarkets:
		c.hub.UnsubscribeFromMarket(c, 0)
	default:
		if marketID, ok := parseMarketChannel(req.Channel); ok {
			c.hub.UnsubscribeFromMarket(c, marketID)
		}
	}

	// Send unsubscription confirmation
	response := Message{
		Type:      "unsubscribed",
		Channel:   req.Channel,
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(response); err == nil {
		c.trySend(data)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	errorMsg := Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": message},
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(errorMsg); err == nil {
		c.trySend(data)
	}
}

// trySend queues a message for the client, dropping it when the buffer is
// full or the client is gone. Runs on the client's read goroutine, which must
// never close send; closing is the hub's job during eviction. Holding the
// read lock keeps eviction (and with it the close) out while the send is in
// flight.
func (c *Client) trySend(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// GetStats returns WebSocket statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	authenticated := 0
	for client := range h.clients {
		if client.account != "" {
			authenticated++
		}
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"market_subscriptions":  len(h.marketSubscriptions),
		"account_subscriptions": len(h.accountSubscriptions),
		"authenticated_clients": authenticated,
	}
}
