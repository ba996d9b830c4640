package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"notesync/internal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	clusterChannel = "notesync_cluster_events"
)

// Hub tracks registered client connections per user and fans snapshot
// frames out to every connection interested in a collection. With Redis
// configured, frames also reach clients attached to other instances.
type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out; nil means single instance
	rdb *redis.Client

	// instanceId tags published cluster frames so the publishing instance
	// can skip its own messages; local delivery already happened.
	instanceId string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceId: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.UserID]) == 0 {
					delete(h.clients, client.UserID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// SendSnapshot delivers a snapshot frame to every local connection of the
// user subscribed to the collection, then publishes to Redis so other
// instances can do the same.
func (h *Hub) SendSnapshot(userID, collection string, frame []byte) {
	h.mu.RLock()
	clients := h.clients[userID]
	for _, client := range clients {
		if !client.IsSubscribed(collection) {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{"user_id": userID})
			h.evict(client)
		}
	}
	h.mu.RUnlock()

	if h.rdb != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"origin":         h.instanceId,
			"target_user_id": userID,
			"collection":     collection,
			"message":        json.RawMessage(frame),
		})
		h.rdb.Publish(context.Background(), clusterChannel, payload)
	}
}

// evict hands a wedged client to the unregister path without blocking the
// fan-out loop. The Run loop owns closing the Send channel.
func (h *Hub) evict(client *Client) {
	go func() {
		h.unregister <- client
	}()
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.handleClusterFrame([]byte(msg.Payload))
	}
}

// handleClusterFrame delivers a frame published by another instance to the
// interested local connections. Frames this instance published itself were
// already delivered locally and are skipped.
func (h *Hub) handleClusterFrame(raw []byte) {
	var payload struct {
		Origin       string          `json:"origin"`
		TargetUserID string          `json:"target_user_id"`
		Collection   string          `json:"collection"`
		Message      json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	if payload.Origin == h.instanceId {
		return
	}

	h.mu.RLock()
	clients := h.clients[payload.TargetUserID]
	for _, client := range clients {
		if !client.IsSubscribed(payload.Collection) {
			continue
		}
		select {
		case client.Send <- payload.Message:
		default:
			h.evict(client)
		}
	}
	h.mu.RUnlock()
}

// Client is a middleman between one websocket connection and the hub.
// UserID is empty until the connection authenticates.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	UserID string

	// Buffered channel of outbound frames.
	Send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}
}

func (c *Client) Subscribe(collection string) {
	c.mu.Lock()
	c.subs[collection] = true
	c.mu.Unlock()
}

func (c *Client) Unsubscribe(collection string) {
	c.mu.Lock()
	delete(c.subs, collection)
	c.mu.Unlock()
}

func (c *Client) IsSubscribed(collection string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[collection]
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
